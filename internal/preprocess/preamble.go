package preprocess

import (
	"fmt"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// FilePreamble renders extracted file texts as delimited blocks followed by
// the marker that introduces the user's own prompt. Empty for no files.
func FilePreamble(files []types.FileContent) string {
	if len(files) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "--- Attached file: %s ---\n%s\n--- End of file: %s ---\n\n", f.Name, f.Content, f.Name)
	}
	b.WriteString("--- User prompt ---\n")
	return b.String()
}

// withFilePreamble folds the preamble and all text parts of msg into one
// leading text part. Media parts keep their order after it.
func withFilePreamble(msg types.NormalizedMessage, files []types.FileContent) types.NormalizedMessage {
	preamble := FilePreamble(files)
	if preamble == "" {
		return msg
	}

	parts := []types.Part{types.TextPart(preamble + msg.Text())}
	for _, p := range msg.Parts {
		if p.Type != types.PartText {
			parts = append(parts, p)
		}
	}
	return types.NormalizedMessage{Role: msg.Role, Parts: parts}
}
