package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/code-100-precent/FocusBuddy/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
)

func renderSessionList(w io.Writer, recs []store.Record) {
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "no sessions")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "ELAPSED", "SCORE", "FOCUS", "TAGS", "ENDED BY")
	for _, rec := range recs {
		t.Row(
			rec.ID,
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			rec.Metrics.Elapsed.Round(time.Second).String(),
			fmt.Sprintf("%d", rec.Metrics.ProductivityScore),
			fmt.Sprintf("%.0f%%", rec.Metrics.FocusPercent),
			strings.Join(rec.Tags, ","),
			endedBy(rec),
		)
	}
	_, _ = fmt.Fprintln(w, t.String())
}

func endedBy(rec store.Record) string {
	if rec.EndedAt == nil {
		return "running"
	}
	return string(rec.EndReason)
}

func renderSession(w io.Writer, rec store.Record) {
	m := rec.Metrics
	line := func(label, value string) {
		_, _ = fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label)), value)
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Session "+rec.ID))
	line("started", rec.StartedAt.Local().Format(time.RFC1123))
	line("planned", rec.PlannedDuration.String())
	line("elapsed", m.Elapsed.Round(time.Second).String())
	line("ended by", endedBy(rec))
	if len(rec.Tags) > 0 {
		line("tags", strings.Join(rec.Tags, ", "))
	}
	if rec.Notes != "" {
		line("notes", rec.Notes)
	}
	line("score", fmt.Sprintf("%d/100", m.ProductivityScore))
	line("focus", fmt.Sprintf("%.0f%% (%s focused, %s distracted, %d breaks)",
		m.FocusPercent, m.FocusTime.Round(time.Second), m.DistractionTime.Round(time.Second), m.FocusBreaks))
	line("longest focus", m.LongestFocus.Round(time.Second).String())
	line("analyses", fmt.Sprintf("%d (%d failed)", m.Analyses, m.FailedAnalyses))
	line("check-ins", fmt.Sprintf("%d, %d answered, compliance %.0f%%", m.CheckIns, m.UserResponses, m.CheckInCompliance*100))
	if rec.Summary != "" {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, rec.Summary)
	}
}
