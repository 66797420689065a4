package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParsePeopleAnalysis parses a model reply into a PeopleAnalysis. Replies
// that are not JSON yield an empty analysis with a fallback description so
// callers treat them as "no people" rather than as failures.
func ParsePeopleAnalysis(raw string) (*types.PeopleAnalysis, error) {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return &types.PeopleAnalysis{Description: "fallback: model returned non-JSON response"}, nil
	}

	var result types.PeopleAnalysis
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return &types.PeopleAnalysis{Description: "fallback: failed to parse model response"}, nil
	}
	return &result, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
