// Package cli implements the terminal chat client: a single streamed turn or
// a line-oriented interactive loop.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"jarvis/internal/domain"
	"jarvis/internal/usecase"
)

const (
	maxLineBytes    = 1 << 20
	maxToolOutput   = 200
	markdownWrapCol = 100
)

var exitWords = []string{"exit", "quit", "sair"}

// Streamer runs one streamed turn.
type Streamer interface {
	Stream(ctx context.Context, in usecase.ChatInput) iter.Seq2[domain.StreamEvent, error]
}

// Options configures a chat client.
type Options struct {
	SessionKey string
	Settings   domain.ChatSettings
	Markdown   bool
	In         io.Reader
	Out        io.Writer
}

// Client prints streamed turns to a terminal.
type Client struct {
	chat Streamer
	opts Options

	md     *glamour.TermRenderer
	bold   lipgloss.Style
	dim    lipgloss.Style
	errSty lipgloss.Style
	accent lipgloss.Style
}

// New creates a client. Styles are resolved against opts.Out so that
// non-terminal writers get plain text.
func New(chat Streamer, opts Options) *Client {
	r := lipgloss.NewRenderer(opts.Out)
	return &Client{
		chat:   chat,
		opts:   opts,
		bold:   r.NewStyle().Bold(true),
		dim:    r.NewStyle().Faint(true),
		errSty: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}).Bold(true),
		accent: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}).Bold(true),
	}
}

// IsExitCommand reports whether line ends the interactive loop.
func IsExitCommand(line string) bool {
	word := strings.TrimSpace(line)
	for _, w := range exitWords {
		if strings.EqualFold(word, w) {
			return true
		}
	}
	return false
}

// Send streams one turn for text and prints it.
func (c *Client) Send(ctx context.Context, text string) error {
	in := usecase.ChatInput{SessionKey: c.opts.SessionKey, Text: text, Settings: c.opts.Settings}

	fmt.Fprint(c.opts.Out, c.accent.Render("Jarvis:")+" ")
	var answer strings.Builder
	midLine := true
	for ev, err := range c.chat.Stream(ctx, in) {
		if err != nil {
			if midLine {
				fmt.Fprintln(c.opts.Out)
			}
			return err
		}
		switch ev.Type {
		case domain.StreamEventToken:
			answer.WriteString(ev.Content)
			if !c.opts.Markdown {
				fmt.Fprint(c.opts.Out, ev.Content)
				midLine = true
			}
		case domain.StreamEventToolStart:
			if midLine {
				fmt.Fprintln(c.opts.Out)
			}
			fmt.Fprintln(c.opts.Out, c.dim.Render("  → "+ev.Name+"…"))
			midLine = false
		case domain.StreamEventToolEnd:
			fmt.Fprintln(c.opts.Out, c.dim.Render("  ✓ "+ev.Name+": "+truncate(ev.Output, maxToolOutput)))
			midLine = false
		}
	}

	if c.opts.Markdown {
		if midLine {
			fmt.Fprintln(c.opts.Out)
		}
		fmt.Fprint(c.opts.Out, c.renderMarkdown(answer.String()))
		return nil
	}
	fmt.Fprintln(c.opts.Out)
	return nil
}

// Run reads lines from opts.In until an exit word, EOF or ctx cancellation.
// Turn errors are printed and the loop continues.
func (c *Client) Run(ctx context.Context) error {
	c.printBanner()

	scanner := bufio.NewScanner(c.opts.In)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(c.opts.Out, c.bold.Render("You:")+" ")
		if !scanner.Scan() {
			fmt.Fprintln(c.opts.Out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if IsExitCommand(line) {
			fmt.Fprintln(c.opts.Out, c.dim.Render("Bye."))
			return nil
		}
		if err := c.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(c.opts.Out, c.errSty.Render("Error: "+describe(err)))
		}
	}
}

func (c *Client) printBanner() {
	s := c.opts.Settings
	fmt.Fprintln(c.opts.Out, c.accent.Render("Jarvis CLI"))
	fmt.Fprintln(c.opts.Out, c.dim.Render(fmt.Sprintf(
		"session: %s | history window: %d | max tool steps: %d | model: %s",
		c.opts.SessionKey, s.HistoryWindow, s.MaxToolSteps, s.Model)))
	fmt.Fprintln(c.opts.Out, c.dim.Render("Type exit, quit or sair to leave."))
}

func (c *Client) renderMarkdown(text string) string {
	if c.md == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(markdownWrapCol),
		)
		if err != nil {
			return text + "\n"
		}
		c.md = r
	}
	out, err := c.md.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// describe returns the user-facing part of err.
func describe(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
