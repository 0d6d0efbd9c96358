package preprocess

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Supported media types.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
	MIMEPDF  = "application/pdf"
)

// base64Signatures maps the base64 prefix of a file signature to its type.
var base64Signatures = []struct {
	prefix   string
	mimeType string
}{
	{"/9j/", MIMEJPEG},
	{"iVBORw0KGgo", MIMEPNG},
	{"R0lGOD", MIMEGIF},
	{"UklGR", MIMEWebP},
	{"JVBERi0", MIMEPDF},
}

// SniffBase64 detects the media type from the start of base64 data.
// It returns "" when no known signature matches.
func SniffBase64(data string) string {
	for _, sig := range base64Signatures {
		if strings.HasPrefix(data, sig.prefix) {
			return sig.mimeType
		}
	}
	return ""
}

// DetectMIME picks the media type for base64 data. A stored type is trusted
// when it is a supported media type; otherwise the payload is sniffed, first
// by signature and then with http.DetectContentType. Returns "" when the
// result is not a supported media type.
func DetectMIME(stored, data string) string {
	if t := normalizeMIME(stored); isSupported(t) {
		return t
	}
	if t := SniffBase64(data); t != "" {
		return t
	}

	head := data
	if len(head) > 684 { // 512 decoded bytes
		head = head[:684]
	}
	raw, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return ""
	}
	if t := normalizeMIME(http.DetectContentType(raw)); isSupported(t) {
		return t
	}
	return ""
}

func normalizeMIME(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "image/jpg" {
		return MIMEJPEG
	}
	return t
}

func isSupported(t string) bool {
	switch t {
	case MIMEJPEG, MIMEPNG, MIMEGIF, MIMEWebP, MIMEPDF:
		return true
	default:
		return false
	}
}
