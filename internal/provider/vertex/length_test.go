package vertex

import (
	"errors"
	"strings"
	"testing"

	"github.com/mandalnilabja/chatgate/internal/types"
)

func intPtr(v int) *int { return &v }

func TestAdjustForLength(t *testing.T) {
	tests := []struct {
		name       string
		prompt     string
		maxTokens  *int
		wantMax    *int
		wantPrefix string
		wantErr    bool
	}{
		{
			name:       "at most 300 characters without max",
			prompt:     "日本の歴史を300字以内で説明して",
			wantMax:    intPtr(1010),
			wantPrefix: "重要: 出力は必ず約300文字（およそ510トークン）以内に厳密に収めてください。この指示は最優先です。\n\n",
		},
		{
			name:       "full-width digits",
			prompt:     "３００文字以下でまとめて",
			wantMax:    intPtr(1010),
			wantPrefix: "重要: 出力は必ず約300文字",
		},
		{
			name:      "at least 300 characters over budget",
			prompt:    "300文字以上で書いて",
			maxTokens: intPtr(100),
			wantErr:   true,
		},
		{
			name:      "at least within budget",
			prompt:    "300文字以上で書いて",
			maxTokens: intPtr(4000),
			wantMax:   intPtr(4000),
		},
		{
			name:    "at least without max is ignored",
			prompt:  "300文字以上で書いて",
			wantMax: nil,
		},
		{
			name:      "no length phrase",
			prompt:    "hello",
			maxTokens: intPtr(500),
			wantMax:   intPtr(500),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj, err := AdjustForLength(tt.prompt, "sys", tt.maxTokens)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidRequest) {
					t.Fatalf("err = %v, want invalid request", err)
				}
				if types.StatusFor(err) != 400 {
					t.Errorf("status = %d, want 400", types.StatusFor(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (adj.MaxTokens == nil) != (tt.wantMax == nil) ||
				(adj.MaxTokens != nil && *adj.MaxTokens != *tt.wantMax) {
				t.Errorf("MaxTokens = %v, want %v", adj.MaxTokens, tt.wantMax)
			}
			if tt.wantPrefix != "" {
				if !strings.HasPrefix(adj.SystemPrompt, tt.wantPrefix) || !strings.HasSuffix(adj.SystemPrompt, "sys") {
					t.Errorf("SystemPrompt = %q", adj.SystemPrompt)
				}
			} else if adj.SystemPrompt != "sys" {
				t.Errorf("SystemPrompt = %q, want unchanged", adj.SystemPrompt)
			}
		})
	}
}

func TestApplyFloor(t *testing.T) {
	if got := applyFloor(nil); got != nil {
		t.Errorf("applyFloor(nil) = %v, want nil", *got)
	}
	if got := applyFloor(intPtr(1010)); *got != MinOutputTokens {
		t.Errorf("applyFloor(1010) = %d, want %d", *got, MinOutputTokens)
	}
	if got := applyFloor(intPtr(8000)); *got != 8000 {
		t.Errorf("applyFloor(8000) = %d", *got)
	}
}
