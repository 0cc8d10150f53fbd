// Package debugger implements an interactive REPL that steps a replay
// session one decision at a time.
package debugger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/leonbett/droidmate/pkg/explore"
	"github.com/leonbett/droidmate/pkg/playback"
)

// Debugger drives a runner from the terminal.
type Debugger struct {
	pkg    string
	engine *playback.Engine
	runner *explore.Runner
	output io.Writer
	rl     *readline.Instance
}

// New creates a debugger over an engine and the runner that owns it.
func New(pkg string, engine *playback.Engine, runner *explore.Runner) *Debugger {
	return &Debugger{
		pkg:    pkg,
		engine: engine,
		runner: runner,
		output: os.Stdout,
	}
}

// SetOutput redirects command output.
func (d *Debugger) SetOutput(w io.Writer) {
	d.output = w
}

var commands = []string{"next", "continue", "peek", "where", "skipped", "stats", "history", "help", "quit"}

// Run starts the interactive REPL loop.
func (d *Debugger) Run(ctx context.Context) error {
	var completer = readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl
	defer rl.Close()

	fmt.Fprintf(d.output, "droidreplay debugger: %s, %d recorded actions\n", d.pkg, d.engine.Total())
	fmt.Fprintf(d.output, "Type 'help' for available commands, 'next' to take one decision.\n\n")

	for {
		rl.SetPrompt(d.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if quit := d.Exec(ctx, line); quit {
			return nil
		}
	}
}

// Exec runs one command line. It reports whether the user asked to quit.
func (d *Debugger) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "next", "n":
		if err := d.handleNext(ctx); err != nil {
			fmt.Fprintf(d.output, "Error: %v\n", err)
		}
	case "continue", "c":
		if err := d.handleContinue(ctx); err != nil {
			fmt.Fprintf(d.output, "Error: %v\n", err)
		}
	case "peek":
		d.handlePeek()
	case "where", "w":
		d.handleWhere()
	case "skipped", "s":
		d.handleSkipped()
	case "stats":
		d.handleStats()
	case "history", "h":
		d.handleHistory()
	case "help", "?":
		d.handleHelp()
	case "quit", "q":
		fmt.Fprintf(d.output, "Exiting debugger.\n")
		return true
	default:
		fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
	}
	return false
}

// buildPrompt creates the prompt string: droidreplay[(t,a) next | N left]>
func (d *Debugger) buildPrompt() string {
	if d.runner.Done() {
		return "droidreplay[done]> "
	}
	next, ok := d.engine.Peek()
	if !ok {
		return "droidreplay[end]> "
	}
	return fmt.Sprintf("droidreplay[%s %s | %d left]> ", d.engine.Position(), next, d.engine.Remaining())
}
