package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Model replies are free text even when JSON is requested; everything here
// normalizes defensively instead of trusting the format.

func extractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return []byte(trimmed), nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(trimmed, pair[0])
		end := strings.LastIndex(trimmed, pair[1])
		if start >= 0 && end > start {
			candidate := trimmed[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
				return []byte(candidate), nil
			}
		}
	}

	return nil, errors.New("model output is not valid JSON")
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseScore pulls the first number out of a reply that should have been
// numeric-only and clamps it to [0,1]. Replies like "0.8/1" or "Score: 0.8"
// still parse.
func parseScore(text string) (float64, error) {
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no numeric score in %q", truncateForError(text))
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", match, err)
	}
	if value > 1 && value <= 10 {
		value = value / 10
	}
	return clamp01(value), nil
}

var (
	linkPattern = regexp.MustCompile(`https?://`)
	codePattern = regexp.MustCompile("```|\\bfunc\\b|\\bclass\\b|[{};]")
)

// heuristicScore estimates importance without a model: longer texts with
// numerals, links or code fragments tend to carry more substance.
func heuristicScore(text string) float64 {
	score := 0.3

	length := len([]rune(text))
	switch {
	case length > 4000:
		score += 0.3
	case length > 1500:
		score += 0.2
	case length > 500:
		score += 0.1
	}

	if strings.ContainsAny(text, "0123456789") {
		score += 0.1
	}
	if linkPattern.MatchString(text) {
		score += 0.1
	}
	if codePattern.MatchString(text) {
		score += 0.1
	}
	return clamp01(score)
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// parseKeywordList accepts a JSON string array or a comma/newline separated
// reply and returns at most limit cleaned keywords.
func parseKeywordList(text string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}

	var raw []string
	if encoded, err := extractJSON(text); err == nil {
		var parsed []string
		if json.Unmarshal(encoded, &parsed) == nil {
			raw = parsed
		}
	}
	if raw == nil {
		cleaned := stripCodeFence(text)
		raw = strings.FieldsFunc(cleaned, func(r rune) bool {
			return r == ',' || r == '\n' || r == ';' || r == '、'
		})
	}

	seen := make(map[string]struct{}, len(raw))
	keywords := make([]string, 0, limit)
	for _, item := range raw {
		keyword := strings.Trim(strings.TrimSpace(item), `"'-•* `)
		if keyword == "" || len([]rune(keyword)) > 60 {
			continue
		}
		key := strings.ToLower(keyword)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, keyword)
		if len(keywords) == limit {
			break
		}
	}
	return keywords
}

// normalizeCategory maps a reply onto the fixed category set, falling back to
// "other" when nothing matches.
func normalizeCategory(text string) string {
	reply := strings.ToLower(strings.TrimSpace(stripCodeFence(text)))
	for _, category := range Categories {
		if reply == category {
			return category
		}
	}
	for _, category := range Categories {
		if strings.Contains(reply, category) {
			return category
		}
	}
	return "other"
}

// normalizeSentiment maps a reply onto positive/neutral/negative. Unreadable
// replies count as neutral rather than failing the facet.
func normalizeSentiment(text string) string {
	reply := strings.ToLower(text)
	switch {
	case strings.Contains(reply, "positive"):
		return "positive"
	case strings.Contains(reply, "negative"):
		return "negative"
	default:
		return "neutral"
	}
}

func truncateForError(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 80 {
		return trimmed[:80]
	}
	return trimmed
}
