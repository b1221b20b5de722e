package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Straits-AI/straits-agents-sub001/cmd/run"
	"github.com/Straits-AI/straits-agents-sub001/cmd/send"
	"github.com/Straits-AI/straits-agents-sub001/cmd/version"
)

var rootCmd = &cobra.Command{
	Use:   "bundler-gateway",
	Short: "Self-bundling gateway for account-abstraction operations",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Err(err).Msg("failed to run command")
		os.Exit(1)
	}
}

func main() {
	rootCmd.AddCommand(version.Cmd)
	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(send.Cmd)

	Execute()
}
