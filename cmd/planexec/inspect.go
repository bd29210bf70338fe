package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newShowCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <thread>",
		Short: "Print the latest checkpoint of a session",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app) error {
			cp, err := a.store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("show %s: %w", args[0], err)
			}

			var out []byte
			if asJSON {
				out, err = json.MarshalIndent(cp, "", "  ")
				out = append(out, '\n')
			} else {
				out, err = yaml.Marshal(cp)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")

	return cmd
}

func newSessionsCmd(c *cli) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			st := store.Status(status)
			switch st {
			case "", store.StatusRunning, store.StatusSuspended, store.StatusTerminated, store.StatusFailed:
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			sessions, err := a.store.List(cmd.Context(), st)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		}),
	}

	cmd.Flags().StringVar(&status, "status", "", "only list sessions in this status (running, suspended, terminated, failed)")

	return cmd
}

func newPurgeCmd(c *cli) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete terminated and failed sessions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			retention := a.cfg.Memory.Retention.Duration
			if cmd.Flags().Changed("older-than") {
				retention = olderThan
			}
			if retention <= 0 {
				return fmt.Errorf("retention must be positive, got %s", retention)
			}

			janitor := agent.NewJanitor(a.store, retention)
			janitor.Logger = a.logger
			n, err := janitor.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", n)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age of the last update past which finished sessions are removed (default memory.retention)")

	return cmd
}
