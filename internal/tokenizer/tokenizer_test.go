package tokenizer

import "testing"

func TestCountTokens(t *testing.T) {
	tok := New(EncodingCL100kBase)

	tests := []struct {
		name     string
		text     string
		minCount int // Token counts may vary slightly
		maxCount int
	}{
		{
			name:     "simple text",
			text:     "Hello, world!",
			minCount: 3,
			maxCount: 5,
		},
		{
			name:     "empty text",
			text:     "",
			minCount: 0,
			maxCount: 0,
		},
		{
			name:     "longer text",
			text:     "The quick brown fox jumps over the lazy dog.",
			minCount: 8,
			maxCount: 12,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count, err := tok.CountTokens(tc.text)
			if err != nil {
				t.Fatalf("CountTokens() error: %v", err)
			}
			if count < tc.minCount || count > tc.maxCount {
				t.Errorf("CountTokens() = %d, want between %d and %d",
					count, tc.minCount, tc.maxCount)
			}
		})
	}
}

func TestUnknownEncoding(t *testing.T) {
	tok := New("no_such_encoding")
	if tok.Encoding() != "no_such_encoding" {
		t.Errorf("Encoding() = %q", tok.Encoding())
	}
	if _, err := tok.CountTokens("hello"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
	if n, err := tok.CountTokens(""); err != nil || n != 0 {
		t.Errorf("empty text = %d, %v, want 0 without loading", n, err)
	}
}
