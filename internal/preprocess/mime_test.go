package preprocess

import (
	"encoding/base64"
	"testing"
)

func TestSniffBase64(t *testing.T) {
	tests := []struct {
		data     string
		expected string
	}{
		{"/9j/4AAQSkZJRg", MIMEJPEG},
		{"iVBORw0KGgoAAAANSUhEUg", MIMEPNG},
		{"R0lGODlhAQABAIAAAP", MIMEGIF},
		{"UklGRiQAAABXRUJQVlA4", MIMEWebP},
		{"JVBERi0xLjcK", MIMEPDF},
		{"SGVsbG8=", ""},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.data, func(t *testing.T) {
			if got := SniffBase64(tc.data); got != tc.expected {
				t.Errorf("SniffBase64(%q) = %q, want %q", tc.data, got, tc.expected)
			}
		})
	}
}

func TestDetectMIME(t *testing.T) {
	png := "iVBORw0KGgoAAAANSUhEUg"
	bmp := base64.StdEncoding.EncodeToString([]byte("BM\x00\x00\x00\x00\x00\x00"))
	text := base64.StdEncoding.EncodeToString([]byte("just some text"))

	tests := []struct {
		name     string
		stored   string
		data     string
		expected string
	}{
		{"trusted stored type", "image/webp", png, MIMEWebP},
		{"jpg alias", "image/jpg", png, MIMEJPEG},
		{"stored with params", "image/png; charset=binary", png, MIMEPNG},
		{"generic stored type sniffed", "application/octet-stream", png, MIMEPNG},
		{"missing stored type sniffed", "", png, MIMEPNG},
		{"unsupported detected type", "", bmp, ""},
		{"plain text rejected", "text/plain", text, ""},
		{"invalid base64", "", "!!!", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectMIME(tc.stored, tc.data); got != tc.expected {
				t.Errorf("DetectMIME(%q) = %q, want %q", tc.stored, got, tc.expected)
			}
		})
	}
}
