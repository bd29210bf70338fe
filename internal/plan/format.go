package plan

import (
	"fmt"
	"strings"
)

// FormatActionPlan renders a plan as the Markdown section shown to the oracle.
func FormatActionPlan(p Plan) string {
	var b strings.Builder
	b.WriteString("# ACTION PLAN FROM PREVIOUS SUPERVISOR/PLANNER\n\n")
	for i, step := range p {
		fmt.Fprintf(&b, "## Action %d\n\n", i+1)
		fmt.Fprintf(&b, "### Agent\n%s\n\n", step.Subagent)
		fmt.Fprintf(&b, "### Task\n%s\n\n", step.Description)
		if i < len(p)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

// FormatPastSteps renders the execution history for the replanner.
func FormatPastSteps(records []ExecutionRecord) string {
	var b strings.Builder
	b.WriteString("# STEPS ALREADY PERFORMED BY THE SUBAGENTS\n\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "## Step %d\n\n", i+1)
		fmt.Fprintf(&b, "### Task Description\n%s\n\n", rec.Context)
		b.WriteString("### Result\nThe following is the response returned after the subagent performed the task above:\n\n")
		fmt.Fprintf(&b, "%s\n\n", rec.Result)
		if i < len(records)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

// FormatNumbered renders one "<index>. <capability> will: <description>" line per step.
func FormatNumbered(p Plan) string {
	lines := make([]string, 0, len(p))
	for i, step := range p {
		lines = append(lines, fmt.Sprintf("%d. %s will: %s", i+1, step.Subagent, step.Description))
	}
	return strings.Join(lines, "\n")
}

// FormatForReview renders a plan the way it is shown to a human reviewer.
func FormatForReview(p Plan) string {
	lines := make([]string, 0, len(p))
	for i, step := range p {
		lines = append(lines, fmt.Sprintf("Step %d: %s (using %s)", i+1, step.Description, step.Subagent))
	}
	return strings.Join(lines, "\n")
}

// StepSummary is the fixed-format context recorded for an executed step.
func StepSummary(step Step) string {
	return fmt.Sprintf("%s executed logic to answer the following request from the planner/supervisor: %s", step.Subagent, step.Description)
}
