package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sumire/autopost/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusColors = map[domain.JobStatus]lipgloss.Color{
		domain.JobStatusPending:    lipgloss.Color("11"),
		domain.JobStatusProcessing: lipgloss.Color("14"),
		domain.JobStatusCompleted:  lipgloss.Color("10"),
		domain.JobStatusFailed:     lipgloss.Color("9"),
	}
)

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func statusText(s domain.JobStatus) string {
	return lipgloss.NewStyle().Foreground(statusColors[s]).Render(string(s))
}

func levelText(l domain.LogLevel) string {
	switch l {
	case domain.LogLevelError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(string(l))
	case domain.LogLevelWarn:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render(string(l))
	default:
		return string(l)
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func outcome(url, msg, errMsg *string) string {
	switch {
	case errMsg != nil:
		return truncate(*errMsg, 60)
	case url != nil:
		return *url
	case msg != nil:
		return truncate(*msg, 60)
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printLogs(w io.Writer, entries []domain.LogEntry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		at := e.CreatedAt
		rows = append(rows, []string{formatTime(&at), levelText(e.Level), e.Message})
	}
	renderTable(w, []string{"TIME", "LEVEL", "MESSAGE"}, rows)
}
