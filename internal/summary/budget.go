package summary

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unit is what a Budget counts.
type Unit string

const (
	UnitChars     Unit = "chars"
	UnitTokens    Unit = "tokens"
	UnitSentences Unit = "sentences"
)

// ParseUnit maps a config value onto a Unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case UnitChars, "characters", "":
		return UnitChars, nil
	case UnitTokens, "words":
		return UnitTokens, nil
	case UnitSentences:
		return UnitSentences, nil
	default:
		return "", fmt.Errorf("unknown summary budget unit %q", s)
	}
}

// Budget bounds the length of a ContextSummary.
type Budget struct {
	Limit int
	Unit  Unit
}

// Measure returns the length of text in the budget's unit. Tokens are
// approximated by whitespace separated words.
func (b Budget) Measure(text string) int {
	switch b.Unit {
	case UnitTokens:
		return len(strings.Fields(text))
	case UnitSentences:
		return len(SplitSentences(text))
	default:
		return utf8.RuneCountInString(text)
	}
}

// Fits reports whether text is within the budget. A non-positive limit
// means unbounded.
func (b Budget) Fits(text string) bool {
	return b.Limit <= 0 || b.Measure(text) <= b.Limit
}

func (b Budget) String() string {
	return fmt.Sprintf("%d %s", b.Limit, b.Unit)
}

// SplitSentences splits text on ., ! and ? followed by whitespace or end of
// text. Each returned sentence is trimmed and keeps its terminator.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// ensureSentence terminates text with a period when it has no terminator.
func ensureSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return text
	}
	return text + "."
}

// TrimToRecent keeps the newest sentences of text that fit the budget. When
// even the last sentence is too long it is cut from the front, keeping its
// tail. The result always fits.
func TrimToRecent(text string, b Budget) string {
	if b.Fits(text) {
		return strings.TrimSpace(text)
	}
	sentences := SplitSentences(text)
	kept := ""
	for i := len(sentences) - 1; i >= 0; i-- {
		candidate := sentences[i]
		if kept != "" {
			candidate = sentences[i] + " " + kept
		}
		if !b.Fits(candidate) {
			break
		}
		kept = candidate
	}
	if kept != "" {
		return kept
	}
	if len(sentences) == 0 {
		return ""
	}
	return cutTail(sentences[len(sentences)-1], b)
}

func cutTail(sentence string, b Budget) string {
	switch b.Unit {
	case UnitTokens:
		words := strings.Fields(sentence)
		if len(words) > b.Limit {
			words = words[len(words)-b.Limit:]
		}
		return strings.Join(words, " ")
	case UnitSentences:
		// one sentence always fits a positive sentence budget
		return sentence
	default:
		runes := []rune(sentence)
		if len(runes) > b.Limit {
			runes = runes[len(runes)-b.Limit:]
		}
		return strings.TrimSpace(string(runes))
	}
}
