package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"jarvis/internal/adapter/cli"
	"jarvis/internal/infra/config"
)

const chatLongDesc = `Chat with the assistant in the terminal.

With a message argument a single streamed turn is printed. Without one an
interactive loop reads lines until exit, quit, sair or end of input.

Examples:
  jarvis chat
  jarvis chat --session-id work --max-turns 5 "what time is it in Tokyo?"
  jarvis chat --no-memory --markdown`

type chatCommander struct {
	configPath *string

	maxTurns     int
	maxToolSteps int
	sessionID    string
	memoryFile   string
	noMemory     bool
	markdown     bool
}

func newChatCmd(configPath *string) *cobra.Command {
	c := &chatCommander{configPath: configPath}
	return c.command()
}

func (c *chatCommander) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat in the terminal",
		Long:  chatLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args)
		},
	}

	cmd.Flags().IntVar(&c.maxTurns, "max-turns", 0, "Number of previous exchanges sent to the model")
	cmd.Flags().IntVar(&c.maxToolSteps, "max-tool-steps", 0, "Maximum tool rounds per turn")
	cmd.Flags().StringVar(&c.sessionID, "session-id", "", "Session to load and save history under")
	cmd.Flags().StringVar(&c.memoryFile, "memory-file", "", "JSON file used as the session store")
	cmd.Flags().BoolVar(&c.noMemory, "no-memory", false, "Keep history in memory only")
	cmd.Flags().BoolVar(&c.markdown, "markdown", false, "Render answers as markdown")
	return cmd
}

// overrides returns only the flags the user actually set.
func (c *chatCommander) overrides(cmd *cobra.Command) config.CLIOverrides {
	o := config.CLIOverrides{NoMemory: c.noMemory}
	flags := cmd.Flags()
	if flags.Changed("max-turns") {
		o.MaxTurns = &c.maxTurns
	}
	if flags.Changed("max-tool-steps") {
		o.MaxToolSteps = &c.maxToolSteps
	}
	if flags.Changed("session-id") {
		o.SessionID = &c.sessionID
	}
	if flags.Changed("memory-file") {
		o.MemoryFile = &c.memoryFile
	}
	return o
}

func (c *chatCommander) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, *c.configPath, c.overrides(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	client := cli.New(a.chatService(), cli.Options{
		SessionKey: a.cfg.Agent.SessionID,
		Settings:   a.defaults(),
		Markdown:   c.markdown,
		In:         cmd.InOrStdin(),
		Out:        cmd.OutOrStdout(),
	})

	if len(args) == 1 {
		msg := strings.TrimSpace(args[0])
		if msg == "" {
			return errors.New("message must not be empty")
		}
		return client.Send(ctx, msg)
	}
	return client.Run(ctx)
}
