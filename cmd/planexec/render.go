package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
)

const reviewQuestion = "Is there anything you would like to change about the plan? Press enter to approve it as is."

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// renderReview shows the plan awaiting the human's verdict.
func renderReview(threadID string, p plan.Plan, styled bool) string {
	title := fmt.Sprintf("Proposed plan (session %s)", threadID)
	body := plan.FormatForReview(p)
	if !styled {
		return title + "\n" + body + "\n\n" + reviewQuestion
	}

	width := observability.TermWidth() - 4
	if width < 20 {
		width = 20
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(title),
		"",
		lipgloss.NewStyle().Width(width).Render(body),
	)
	return lipgloss.JoinVertical(lipgloss.Left, boxStyle.Render(content), hintStyle.Render(reviewQuestion))
}

func renderResponse(res *agent.Result, styled bool) string {
	if !styled {
		return res.Response
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("Response"),
		"",
		res.Response,
	))
}

// printResult reports wherever a session yielded: awaiting review or finished.
func printResult(w io.Writer, res *agent.Result, styled bool) {
	switch res.Status {
	case store.StatusSuspended:
		fmt.Fprintln(w, renderReview(res.ThreadID, res.Interrupt.PlanForReview, styled))
	case store.StatusTerminated:
		fmt.Fprintln(w, renderResponse(res, styled))
	default:
		fmt.Fprintf(w, "Session %s is %s\n", res.ThreadID, res.Status)
	}
}

func printSessions(w io.Writer, sessions []store.Checkpoint) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	fmt.Fprintf(w, "%-40s %-11s %-13s %s\n", "THREAD", "STATUS", "NEXT", "UPDATED")
	for _, cp := range sessions {
		next := cp.Next
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(w, "%-40s %-11s %-13s %s\n", cp.ThreadID, cp.Status, next, cp.UpdatedAt.Local().Format(time.DateTime))
		if cp.LastError != "" {
			fmt.Fprintf(w, "  error: %s\n", strings.TrimSpace(cp.LastError))
		}
	}
}
