package checkin

import (
	"strconv"
	"strings"
)

// Family selects the kind of check-in prompt.
type Family string

const (
	FamilyProductive Family = "productive"
	FamilyDistracted Family = "distracted"
	FamilyInactive   Family = "inactive"
	FamilyProgress   Family = "progress"
)

var templates = map[Family][]string{
	FamilyProductive: {
		"I see you're working on {task}. How's it going?",
		"You've been focused on {task} for a while. Making good progress?",
		"Still working on {task}? Need any help or reminders?",
		"You're deep into {task}. Is everything going well?",
	},
	FamilyDistracted: {
		"I notice you're on {distraction}. Would you like to refocus on your main task?",
		"It looks like you've switched to {distraction}. Is this related to your work?",
		"You seem to be spending time on {distraction}. A small reminder of your focus goals.",
		"I see {distraction} on screen. Do you want to set a time limit for this break?",
	},
	FamilyInactive: {
		"I haven't noticed much activity recently. Are you still working or taking a break?",
		"Things seem quiet. Are you thinking, reading, or taking a break?",
		"Not much has changed on your screen lately. Still with me?",
		"It's been quiet for a bit. Are you still in your focus session?",
	},
	FamilyProgress: {
		"Great work on {task}! You've been focused for {duration} minutes now.",
		"You've been consistently working on {task} for {duration} minutes. Well done!",
		"You've kept your concentration on {task} for {duration} minutes straight.",
		"You've been in the zone with {task} for {duration} minutes. Keep it up!",
	},
}

// PromptInput is what a check-in prompt is composed from.
type PromptInput struct {
	Style        Style
	Family       Family
	Count        int // check-ins delivered before this one
	Summary      string
	Task         string
	Distraction  string
	FocusMinutes int
}

// ChooseFamily picks the prompt family from the latest loop state. Every
// fourth check-in of a productive stretch is a progress note.
func ChooseFamily(count int, changed bool, productive *bool) Family {
	switch {
	case !changed || productive == nil:
		return FamilyInactive
	case !*productive:
		return FamilyDistracted
	case (count+1)%4 == 0:
		return FamilyProgress
	default:
		return FamilyProductive
	}
}

// ComposePrompt renders a check-in prompt. Templates rotate by Count so the
// same family does not repeat the same line back to back.
func ComposePrompt(in PromptInput) string {
	lines := templates[in.Family]
	if len(lines) == 0 {
		lines = templates[FamilyInactive]
	}
	line := lines[in.Count%len(lines)]

	task := in.Task
	if task == "" {
		task = "your task"
	}
	distraction := in.Distraction
	if distraction == "" {
		distraction = "something else"
	}
	line = strings.NewReplacer(
		"{task}", task,
		"{distraction}", distraction,
		"{duration}", strconv.Itoa(in.FocusMinutes),
	).Replace(line)

	switch in.Style {
	case StyleDirect:
		line = "Check-in: " + line
	case StyleCoach:
		if in.Family == FamilyDistracted || in.Family == FamilyInactive {
			line += " What's the one next step you can take right now?"
		} else {
			line += " What will you finish before the next check-in?"
		}
	}

	if s := strings.TrimSpace(in.Summary); s != "" {
		line += "\nRecent activity: " + s
	}
	return line
}
