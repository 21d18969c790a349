package vision

import "strings"

var productiveKeywords = []string{
	"coding", "programming", "writing", "document", "spreadsheet",
	"presentation", "research", "studying", "reading", "work",
	"productive", "development", "analysis", "design", "project",
	"editing code", "terminal", "debugging",
}

var distractionKeywords = []string{
	"social media", "youtube", "entertainment", "game", "gaming",
	"distraction", "unrelated", "non-productive", "streaming", "video",
	"browsing", "shopping", "non-work",
}

var knownApps = []string{
	"Chrome", "Firefox", "Safari", "Edge", "Visual Studio Code", "VS Code",
	"GoLand", "PyCharm", "IntelliJ", "Vim", "Neovim", "Emacs",
	"Word", "Excel", "PowerPoint", "Outlook", "Notion", "Obsidian",
	"Slack", "Discord", "Teams", "Zoom", "Terminal", "iTerm",
	"Photoshop", "Illustrator", "Figma", "Sketch", "YouTube",
}

var knownActivities = []string{
	"coding", "programming", "writing", "reading", "browsing",
	"watching", "gaming", "chatting", "messaging", "emailing",
	"researching", "designing", "editing", "analyzing", "presenting",
	"debugging", "testing",
}

// IsProductive judges a description by keyword counts. Explicit verdicts in
// the text win over counts.
func IsProductive(text string) bool {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "not productive"), strings.Contains(lower, "non-productive"),
		strings.Contains(lower, "unproductive"), strings.Contains(lower, "distraction"):
		return false
	case strings.Contains(lower, "productive"):
		return true
	}

	productive, distracted := 0, 0
	for _, k := range productiveKeywords {
		if strings.Contains(lower, k) {
			productive++
		}
	}
	for _, k := range distractionKeywords {
		if strings.Contains(lower, k) {
			distracted++
		}
	}
	return productive > distracted
}

// DetectApps lists known application names mentioned in text.
func DetectApps(text string) []string {
	return matchAll(text, knownApps)
}

// DetectActivities lists known activities mentioned in text.
func DetectActivities(text string) []string {
	return matchAll(text, knownActivities)
}

func matchAll(text string, candidates []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, c := range candidates {
		if strings.Contains(lower, strings.ToLower(c)) {
			out = append(out, c)
		}
	}
	return out
}
