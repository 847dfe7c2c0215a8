package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"xtplay/internal/failure"
	"xtplay/internal/playback"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6AC1"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7EC8E3"))

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9B9B9B"))
)

// Transition renders a playback state change as one status line.
func Transition(t playback.Transition) string {
	switch t.To {
	case playback.StateProbing:
		return statusStyle.Render(fmt.Sprintf("Trying stream %d/%d...", t.Candidate+1, t.Total))
	case playback.StatePlaying:
		return playingStyle.Render(fmt.Sprintf("Playing (stream %d/%d)", t.Candidate+1, t.Total))
	case playback.StateExhausted:
		return statusStyle.Render("No stream URL played, checking the server...")
	case playback.StateOffline:
		return errorStyle.Render("Stream offline")
	case playback.StateUnreachable:
		return errorStyle.Render("Server unreachable")
	case playback.StateMixedContentBlocked:
		return errorStyle.Render("Insecure stream blocked")
	case playback.StateClosed:
		return hintStyle.Render("Playback ended")
	default:
		return t.To.String()
	}
}

// Error renders err with its suggestion, if it has one.
func Error(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(errorStyle.Render("Error: " + err.Error()))
	if s := failure.SuggestionOf(err); s != "" {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render(s))
	}
	return b.String()
}

// Title renders a heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Hint renders secondary text.
func Hint(s string) string {
	return hintStyle.Render(s)
}

// QualityLabels lists "Auto" followed by each level, marking the current one.
func QualityLabels(levels []playback.QualityLevel, current int) []string {
	labels := make([]string, 0, len(levels)+1)
	mark := func(s string, on bool) string {
		if on {
			return s + " *"
		}
		return s
	}
	labels = append(labels, mark("Auto", current == playback.AutoQuality))
	for _, l := range levels {
		labels = append(labels, mark(l.Label(), current == l.Index))
	}
	return labels
}
