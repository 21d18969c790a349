package utils

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTagLength = 32
	MaxTags      = 10
)

// SanitizeInput trims the input and removes control characters other than
// line breaks and tabs.
func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, input)
}

// ValidateXSS rejects text carrying script or embed markup. Notes and
// responses are echoed to the browser over the event stream.
func ValidateXSS(input string) error {
	if input == "" {
		return nil
	}
	xssPatterns := []string{
		"<script", "</script>", "javascript:", "onerror=",
		"onload=", "onclick=", "<iframe", "<img", "onmouseover=",
		"<svg", "<object", "<embed",
	}
	lower := strings.ToLower(input)
	for _, pattern := range xssPatterns {
		if strings.Contains(lower, pattern) {
			return errors.New("input contains potentially dangerous script tags")
		}
	}
	return nil
}

// SanitizeText cleans free text and cuts it to maxRunes (0 means no limit).
func SanitizeText(input string, maxRunes int) (string, error) {
	input = SanitizeInput(input)
	if err := ValidateXSS(input); err != nil {
		return "", err
	}
	if maxRunes > 0 && utf8.RuneCountInString(input) > maxRunes {
		input = string([]rune(input)[:maxRunes])
	}
	return input, nil
}

// SanitizeTags lower-cases tags, replaces inner spaces with dashes, drops
// empty or duplicate ones and keeps at most MaxTags.
func SanitizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(SanitizeInput(tag))
		tag = strings.Join(strings.Fields(tag), "-")
		tag = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
				return r
			}
			return -1
		}, tag)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			tag = string([]rune(tag)[:MaxTagLength])
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}
