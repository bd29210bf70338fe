package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/gateway"
	"github.com/spf13/cobra"
)

var errNoGateway = errors.New("no chat gateway is enabled in config")

type gatewayRunner interface {
	Start() error
	Stop() error
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram and Discord review gateways",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			orch, err := a.Orchestrator()
			if err != nil {
				return err
			}

			router := gateway.NewRouter(orch, a.store, a.tracker)
			router.HistoryLimit = a.cfg.Orchestrator.HistoryLimit

			var gateways []gatewayRunner
			if tgCfg, ok := a.cfg.GetTelegramConfig(); ok {
				tg, err := gateway.NewTelegramGateway(tgCfg.Token, router, tgCfg.AllowedUsers)
				if err != nil {
					return err
				}
				gateways = append(gateways, tg)
			}
			if dcCfg, ok := a.cfg.GetDiscordConfig(); ok {
				dc, err := gateway.NewDiscordGateway(dcCfg.Token, router)
				if err != nil {
					return err
				}
				gateways = append(gateways, dc)
			}
			if len(gateways) == 0 {
				return errNoGateway
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			janitor := agent.NewJanitor(a.store, a.cfg.Memory.Retention.Duration)
			janitor.Logger = a.logger
			janitor.Tracker = a.tracker
			go janitor.Start(ctx)

			var wg sync.WaitGroup
			for _, g := range gateways {
				wg.Add(1)
				go func(g gatewayRunner) {
					defer wg.Done()
					if err := g.Start(); err != nil {
						log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
						stop() // a dead gateway takes the process down
					}
				}(g)
			}

			<-ctx.Done()
			for _, g := range gateways {
				if err := g.Stop(); err != nil {
					log.Printf("Error stopping gateway: %v", err)
				}
			}
			wg.Wait()

			log.Println("\033[95m[ EXIT ] GATEWAYS STOPPED. GOODBYE.\033[0m")
			return nil
		}),
	}
}
