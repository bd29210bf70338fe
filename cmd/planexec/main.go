package main

import (
	"log"
	"os"

	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
)

func main() {
	observability.PrintBanner()

	// Route all log output through the terminal mutex so it never
	// interrupts a plan being printed for review.
	log.SetOutput(observability.NewTermWriter())

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
