package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// ExtractJSON unmarshals the model response into v. Smaller local models like
// to wrap JSON in markdown code fences or prepend chatter, so on a parse
// failure the text is stripped down to its outermost JSON object and parsed
// once more before giving up.
func ExtractJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.ErrEmptyResponse
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	stripped := stripToObject(text)
	if stripped == "" {
		return fmt.Errorf("%w: no JSON object found", apperrors.ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(stripped), v); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}

	return nil
}

// stripToObject removes code fences and any text outside the outermost
// braces.
func stripToObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start < 0 || end <= start {
		return ""
	}

	return text[start : end+1]
}
