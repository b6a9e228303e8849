package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/chaz8081/embermug/internal/session"
)

// Shell is the readline front end for Commands.
type Shell struct {
	cmds *Commands
	rl   *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("status"),
	readline.PcItem("temp"),
	readline.PcItem("target"),
	readline.PcItem(session.PresetCoffee),
	readline.PcItem(session.PresetTea),
	readline.PcItem("battery"),
	readline.PcItem("color"),
	readline.PcItem("preset",
		readline.PcItem(session.PresetCoffee),
		readline.PcItem(session.PresetTea),
	),
	readline.PcItem("quit"),
)

// New creates a shell on the terminal.
func New(cmds *Commands) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mug> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{cmds: cmds, rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Close releases the terminal. It unblocks a pending Readline.
func (s *Shell) Close() error {
	return s.rl.Close()
}

// Run reads commands until quit, EOF or ctx is done. cancel is called when
// the user asks to exit.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) error {
	defer s.rl.Close()

	out := s.rl.Stdout()
	fmt.Fprintln(out, helpText)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			if ctx.Err() == nil {
				fmt.Fprintln(out, "Exiting...")
				cancel()
			}
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply, err := s.cmds.Execute(ctx, line)
		switch {
		case errors.Is(err, ErrQuit):
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return nil
		case errors.Is(err, session.ErrNotConnected):
			fmt.Fprintln(out, "Mug not connected")
		case err != nil:
			fmt.Fprintf(out, "Error: %v\n", err)
		case reply != "":
			fmt.Fprintln(out, reply)
		}
	}
}
