// Package lang detects the dominant language of article text using Unicode
// range counting. Detection is pure: same input, same output, no network.
package lang

import (
	"regexp"
	"strings"
	"unicode"
)

type Language string

const (
	Chinese    Language = "zh"
	Korean     Language = "ko"
	Japanese   Language = "ja"
	English    Language = "en"
	Spanish    Language = "es"
	French     Language = "fr"
	German     Language = "de"
	Portuguese Language = "pt"
	Italian    Language = "it"
	Russian    Language = "ru"
	Other      Language = "other"
)

// Latin reports whether the language uses a Latin script, which routes to the
// fast general models.
func (l Language) Latin() bool {
	switch l {
	case English, Spanish, French, German, Portuguese, Italian:
		return true
	default:
		return false
	}
}

// Detect classifies text by character-range fractions: CJK above 20% wins,
// then Hangul and kana above 10%, then Latin above 50% hands off to the
// stop-word classifier. Anything else is Other.
func Detect(text string) Language {
	total := 0
	cjk := 0
	hangul := 0
	kana := 0
	latin := 0
	cyrillic := 0

	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Han, r):
			cjk++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		}
	}

	if total == 0 {
		return Other
	}

	switch {
	case float64(cjk)/float64(total) > 0.20:
		return Chinese
	case float64(hangul)/float64(total) > 0.10:
		return Korean
	case float64(kana)/float64(total) > 0.10:
		return Japanese
	case float64(cyrillic)/float64(total) > 0.20:
		return Russian
	case float64(latin)/float64(total) > 0.50:
		return classifyLatin(text)
	default:
		return Other
	}
}

// Stop-word probes per Latin language. Word boundaries keep "the" from
// matching inside "theory".
var latinProbes = []struct {
	language Language
	pattern  *regexp.Regexp
}{
	{English, regexp.MustCompile(`(?i)\b(the|and|is|are|was|were|this|that|with|for|have|from)\b`)},
	{Spanish, regexp.MustCompile(`(?i)\b(el|la|los|las|es|son|está|para|pero|como|más|una)\b`)},
	{French, regexp.MustCompile(`(?i)\b(le|la|les|est|sont|dans|pour|avec|mais|une|des|être)\b`)},
	{German, regexp.MustCompile(`(?i)\b(der|die|das|ist|sind|und|nicht|mit|für|eine|auch|werden)\b`)},
	{Portuguese, regexp.MustCompile(`(?i)\b(o|os|as|é|são|está|para|com|mas|uma|não|mais)\b`)},
	{Italian, regexp.MustCompile(`(?i)\b(il|lo|gli|è|sono|nella|per|con|ma|una|anche|questo)\b`)},
}

// classifyLatin counts stop-word matches per candidate and picks the winner.
// Ties favor English, the default.
func classifyLatin(text string) Language {
	sample := text
	if len(sample) > 4000 {
		sample = sample[:4000]
	}
	sample = strings.ToLower(sample)

	best := English
	bestCount := 0
	for _, probe := range latinProbes {
		count := len(probe.pattern.FindAllStringIndex(sample, -1))
		if count > bestCount {
			best = probe.language
			bestCount = count
		}
	}
	return best
}
