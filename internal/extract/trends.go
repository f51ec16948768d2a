package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fencedArrayPattern matches a JSON array inside a ```json (or bare ```) block.
	fencedArrayPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*?\\])\\s*```")
	// bareArrayPattern is the greedy fallback for an unfenced array.
	bareArrayPattern     = regexp.MustCompile(`(?s)\[.*\]`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// Trend is one item of the daily trends list.
type Trend struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ViralScore    int    `json:"viralScore"`
	Justification string `json:"justification"`
	Category      string `json:"category"`
	Angle         string `json:"angle"`
}

// TrendValidator checks a decoded trends document against its schema.
type TrendValidator interface {
	ValidateTrends(doc any) error
}

// ParseTrends decodes the trend list embedded in agent text. It never fails:
// when no valid list can be found it returns a single item carrying the raw
// text and degraded=true. A nil validator skips schema checks.
func ParseTrends(text string, v TrendValidator) (trends []Trend, degraded bool) {
	raw := extractArray(text)
	if raw == "" {
		return fallbackTrends(text), true
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fallbackTrends(text), true
	}
	if v != nil {
		if err := v.ValidateTrends(doc); err != nil {
			return fallbackTrends(text), true
		}
	}
	if err := json.Unmarshal([]byte(raw), &trends); err != nil || len(trends) == 0 {
		return fallbackTrends(text), true
	}
	return trends, false
}

func extractArray(text string) string {
	if m := fencedArrayPattern.FindStringSubmatch(text); len(m) > 1 {
		return cleanJSON(m[1])
	}
	if m := bareArrayPattern.FindString(text); m != "" {
		return cleanJSON(m)
	}
	return ""
}

func cleanJSON(raw string) string {
	return trailingCommaPattern.ReplaceAllString(strings.TrimSpace(raw), "$1")
}

func fallbackTrends(text string) []Trend {
	return []Trend{{
		Title:         "Daily trends",
		Description:   text,
		ViralScore:    50,
		Justification: "AI-generated analysis",
		Category:      "For You",
		Angle:         "See the full analysis",
	}}
}
