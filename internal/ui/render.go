package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/sync"
)

// ShortIDLength is how much of a task id the table shows.
const ShortIDLength = 8

// ShortID truncates id for display.
func ShortID(id string) string {
	if len(id) <= ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}

// TaskTable renders tasks as a bordered table.
func TaskTable(tasks []*schema.Task, now time.Time) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		done := " "
		if t.IsCompleted {
			done = "✓"
		}
		synced := "✓"
		if !t.IsSynced {
			synced = "•"
		}
		rows = append(rows, []string{ShortID(t.ID), done, t.Title, Ago(t.UpdatedAt, now), synced})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers("ID", "DONE", "TITLE", "UPDATED", "SYNCED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true)
			case col == 0:
				return style.Foreground(ColorMuted)
			case col == 1:
				return style.Foreground(ColorPass)
			case col == 4 && row < len(tasks) && !tasks[row].IsSynced:
				return style.Foreground(ColorWarn)
			}
			return style
		}).
		String()
}

// Ago formats how long before now t was, coarsely.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < 0:
		return t.Local().Format("2006-01-02 15:04")
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Local().Format("2006-01-02")
	}
}

// SyncSummary renders both phase outcomes of res, one per line.
func SyncSummary(res *sync.Result) string {
	var b strings.Builder
	for _, p := range []sync.PhaseResult{res.Push, res.Pull} {
		mark := RenderPass("✓")
		switch {
		case p.Err != nil:
			mark = RenderFail("✗")
		case !p.Attempted:
			mark = RenderMuted("-")
		}
		fmt.Fprintf(&b, "%s %s %s\n", mark, p, RenderMuted(p.Duration.Round(time.Millisecond).String()))
	}
	if res.Shared {
		fmt.Fprintf(&b, "%s\n", RenderMuted("(joined a sync already in progress)"))
	}
	return b.String()
}
