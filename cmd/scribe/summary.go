package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/scribeforge/scribe/internal/telemetry"
)

var (
	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// renderSummary renders the post-run box printed for every command.
func renderSummary(command string, processed, failed, skipped int, sum telemetry.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("scribe "+command) + "\n\n")

	processedStr := okStyle.Render(fmt.Sprintf("%d", processed))
	failedStr := okStyle.Render("0")
	if failed > 0 {
		failedStr = failStyle.Render(fmt.Sprintf("%d", failed))
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %d\n",
		labelStyle.Render("processed"), processedStr,
		labelStyle.Render("failed"), failedStr,
		labelStyle.Render("skipped"), skipped,
	)

	if sum.Calls > 0 {
		fmt.Fprintf(&b, "%s %d calls, %d in / %d out tokens",
			labelStyle.Render("provider"), sum.Calls, sum.TokensIn, sum.TokensOut)
		if sum.CostUSD > 0 {
			fmt.Fprintf(&b, ", $%.4f", sum.CostUSD)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("duration"), sum.Duration.Round(10*time.Millisecond))

	return summaryBox.Render(b.String())
}

// renderDryRun renders the plan box for --dry-run.
func renderDryRun(command string, wouldRun, wouldSkip int) string {
	body := fmt.Sprintf("%s\n\n%s %d   %s %d",
		titleStyle.Render("scribe "+command+" (dry run)"),
		labelStyle.Render("would process"), wouldRun,
		labelStyle.Render("would skip"), wouldSkip,
	)
	return summaryBox.Render(body)
}

// renderStatus colors a run status for the status table.
func renderStatus(status string) string {
	switch status {
	case "complete":
		return okStyle.Render(status)
	case "failed":
		return failStyle.Render(status)
	default:
		return warnStyle.Render(status)
	}
}
