package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		threadID string
		detach   bool
	)

	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Start a session for a customer request and see it through review",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.Orchestrator()
			if err != nil {
				return err
			}
			request := strings.TrimSpace(strings.Join(args, " "))
			if request == "" {
				return agent.ErrNoRequest
			}
			if threadID == "" {
				threadID = a.newThreadID()
			}

			res, err := orch.Start(cmd.Context(), threadID, []plan.Message{plan.HumanMessage(request)})
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, a.interactive)
			if res.Status != store.StatusSuspended {
				return nil
			}
			if detach {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s is waiting for review. Continue with: planexec resume %s --feedback \"...\"\n", threadID, threadID)
				return nil
			}

			feedback := ""
			if !c.autoApprove() {
				fmt.Fprint(cmd.OutOrStdout(), "> ")
				feedback, err = readFeedback(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			res, err = orch.Resume(cmd.Context(), threadID, feedback)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, a.interactive)
			return nil
		}),
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread id for the new session (generated when empty)")
	cmd.Flags().BoolVar(&detach, "detach", false, "stop once the plan awaits review and print the thread id")

	return cmd
}

func newResumeCmd(c *cli) *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "resume <thread>",
		Short: "Deliver review feedback to a suspended session (no feedback approves the plan)",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.Orchestrator()
			if err != nil {
				return err
			}
			res, err := orch.Resume(cmd.Context(), args[0], feedback)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, a.interactive)
			return nil
		}),
	}

	cmd.Flags().StringVar(&feedback, "feedback", "", "requested change to the plan")

	return cmd
}

func newRecoverCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "recover <thread>",
		Short: "Continue a failed or abandoned session from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.Orchestrator()
			if err != nil {
				return err
			}
			recover := orch.Recover
			if force {
				recover = orch.ForceRecover
			}
			res, err := recover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, a.interactive)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&force, "force", false, "take over a running session even if it was checkpointed recently")

	return cmd
}

// readFeedback reads one line; end of input counts as approval.
func readFeedback(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read feedback: %w", err)
	}
	return strings.TrimSpace(line), nil
}
