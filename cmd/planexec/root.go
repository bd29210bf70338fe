package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli holds the flag/env view shared by every command and the app wired from it.
type cli struct {
	v      *viper.Viper
	models modelFactory
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(buildModel)
}

func newRootCmdWith(models modelFactory) *cobra.Command {
	c := &cli{v: viper.New(), models: models}

	rootCmd := &cobra.Command{
		Use:           "planexec",
		Short:         "Plan, review, execute and replan customer requests across remote support agents",
		Long:          "planexec drafts a plan for a customer request, suspends for human review, dispatches each step to a remote subagent and replans until it can answer.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", defaultConfigPath, "config file (.yaml, .toml or .json)")
	flags.String("db", "", "sqlite checkpoint database (overrides memory.path)")
	flags.Bool("memory", false, "keep checkpoints in process memory only")
	flags.Bool("auto-approve", false, "approve every proposed plan without asking")

	c.v.SetEnvPrefix("PLANEXEC")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(flags)

	rootCmd.AddCommand(
		newRunCmd(c),
		newResumeCmd(c),
		newShowCmd(c),
		newSessionsCmd(c),
		newRecoverCmd(c),
		newPurgeCmd(c),
		newServeCmd(c),
	)

	return rootCmd
}

func (c *cli) options() wireOptions {
	return wireOptions{
		ConfigPath: c.v.GetString("config"),
		ConfigSet:  c.v.IsSet("config"),
		DBPath:     c.v.GetString("db"),
		Memory:     c.v.GetBool("memory"),
	}
}

func (c *cli) autoApprove() bool {
	return c.v.GetBool("auto-approve")
}

// withApp wires the app for one command invocation and closes it afterwards.
func (c *cli) withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := wireApp(c.options(), c.models)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}
