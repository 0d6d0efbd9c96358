package vertex

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	// tokensPerChar is the estimated output tokens per requested Japanese character.
	tokensPerChar = 1.7

	// lengthHeadroom is added to the estimated budget of a capped answer.
	lengthHeadroom = 500

	// MinOutputTokens is the smallest max-token budget sent to Gemini.
	// Lower budgets tend to produce empty answers once thinking tokens are spent.
	MinOutputTokens = 2000
)

var (
	moreThanPattern = regexp.MustCompile(`([0-9０-９]+)\s*(?:文字|字)\s*(?:以上|超え|より多く)(?:で|の)`)
	lessThanPattern = regexp.MustCompile(`([0-9０-９]+)\s*(?:文字|字)\s*(?:以内|以下|で)`)
)

// LengthAdjustment is the result of scanning a prompt for a requested answer length.
type LengthAdjustment struct {
	MaxTokens    *int
	SystemPrompt string
}

// AdjustForLength applies the character-count heuristic to the last user prompt.
//
// "N文字以上で" with a configured max budget smaller than the estimated tokens is
// rejected. "N字以内で" raises the budget to the estimate plus headroom and puts a
// hard length instruction in front of the system prompt. Otherwise the inputs are
// returned unchanged.
func AdjustForLength(prompt, systemPrompt string, maxTokens *int) (LengthAdjustment, error) {
	adj := LengthAdjustment{MaxTokens: maxTokens, SystemPrompt: systemPrompt}

	if m := moreThanPattern.FindStringSubmatch(prompt); m != nil && maxTokens != nil {
		chars, err := parseCount(m[1])
		if err == nil {
			estimated := estimateTokens(chars)
			if estimated > *maxTokens {
				return adj, types.NewInvalidRequest(fmt.Sprintf(
					"プロンプトの要求文字数（約%dトークン）が、設定された最大トークン数（%d）を超えています。設定を調整してください。",
					estimated, *maxTokens))
			}
		}
	}

	if m := lessThanPattern.FindStringSubmatch(prompt); m != nil {
		chars, err := parseCount(m[1])
		if err == nil {
			estimated := estimateTokens(chars)
			budget := estimated + lengthHeadroom
			adj.MaxTokens = &budget
			adj.SystemPrompt = fmt.Sprintf(
				"重要: 出力は必ず約%d文字（およそ%dトークン）以内に厳密に収めてください。この指示は最優先です。\n\n%s",
				chars, estimated, systemPrompt)
		}
	}

	return adj, nil
}

func estimateTokens(chars int) int {
	return int(math.Ceil(float64(chars) * tokensPerChar))
}

// parseCount parses a decimal count that may use full-width digits.
func parseCount(s string) (int, error) {
	half := strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return r - 0xFEE0
		}
		return r
	}, s)
	return strconv.Atoi(half)
}

// applyFloor raises a set budget to MinOutputTokens. An unset budget stays unset.
func applyFloor(maxTokens *int) *int {
	if maxTokens == nil || *maxTokens >= MinOutputTokens {
		return maxTokens
	}
	floor := MinOutputTokens
	return &floor
}
