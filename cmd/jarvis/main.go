package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "jarvis",
		Short:         "Conversational assistant with tool calling",
		Long:          rootLongDesc,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the YAML config file")

	cmd.AddCommand(newChatCmd(&configPath), newServeCmd(&configPath))
	return cmd
}

const rootLongDesc = `jarvis forwards user messages to an OpenAI-compatible model that may call
a calculator and a timezone-aware clock, and keeps per-session history.

Configuration is read from the YAML file given by --config and overridden by
JARVIS_* and OPENAI_* environment variables.

Examples:
  jarvis chat                       # interactive session
  jarvis chat "what is 2**10?"      # single message
  jarvis serve --config prod.yaml   # HTTP and WebSocket API`

func defaultConfigPath() string {
	if p := os.Getenv("JARVIS_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
