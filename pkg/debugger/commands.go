package debugger

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonbett/droidmate/pkg/explore"
)

// handleNext takes one decision and executes it on the device.
func (d *Debugger) handleNext(ctx context.Context) error {
	if d.runner.Done() {
		fmt.Fprintf(d.output, "Session finished: %s.\n", d.runner.Result().Status)
		return nil
	}
	rec, done, err := d.runner.Step(ctx)
	if err != nil {
		return err
	}
	printStep(d, rec)
	if done {
		fmt.Fprintf(d.output, "Session finished: %s.\n", d.runner.Result().Status)
	}
	return nil
}

// handleContinue runs to the end of the session.
func (d *Debugger) handleContinue(ctx context.Context) error {
	for !d.runner.Done() {
		if err := d.handleNext(ctx); err != nil {
			return err
		}
	}
	return nil
}

func printStep(d *Debugger, rec explore.StepRecord) {
	if rec.StartedAt.IsZero() {
		return
	}
	if rec.Error != "" {
		fmt.Fprintf(d.output, "  ✗ [%d] on %s: %s\n", rec.Index, rec.State, rec.Error)
		return
	}
	line := fmt.Sprintf("  ✓ [%d] on %s: %s", rec.Index, rec.State, strings.TrimSpace(rec.Action.String()))
	if rec.Action.Position != nil {
		line += "  from " + rec.Action.Position.String()
	}
	if rec.Attempts > 1 {
		line += fmt.Sprintf("  (%d attempts)", rec.Attempts)
	}
	fmt.Fprintln(d.output, line)
}

// handlePeek shows the next recorded action without consuming it.
func (d *Debugger) handlePeek() {
	next, ok := d.engine.Peek()
	if !ok {
		fmt.Fprintf(d.output, "No recorded actions left; the next decision is terminate.\n")
		return
	}
	fmt.Fprintf(d.output, "  %s %s\n", d.engine.Position(), next)
	if next.Target != nil {
		t := next.Target
		fmt.Fprintf(d.output, "    text=%q resource_id=%q class=%q actionable=%v\n", t.Text, t.ResourceID, t.Class, t.Actionable)
	}
	if next.ResultState != "" {
		fmt.Fprintf(d.output, "    led to %s at recording time\n", next.ResultState)
	}
}

// handleWhere prints the cursor position.
func (d *Debugger) handleWhere() {
	fmt.Fprintf(d.output, "  position %s, %d of %d recorded actions left\n",
		d.engine.Position(), d.engine.Remaining(), d.engine.Total())
}

// handleSkipped lists skipped positions and the pending retry candidate.
func (d *Debugger) handleSkipped() {
	st := d.engine.Stats()
	if len(st.Skipped) == 0 {
		fmt.Fprintf(d.output, "No actions skipped.\n")
	} else {
		parts := make([]string, len(st.Skipped))
		for i, p := range st.Skipped {
			parts[i] = p.String()
		}
		fmt.Fprintf(d.output, "  skipped: %s\n", strings.Join(parts, " "))
	}
	if rec, pos, ok := d.engine.Skipped(); ok {
		fmt.Fprintf(d.output, "  retry candidate: %s %s\n", pos, rec)
	}
}

// handleStats prints the engine counters.
func (d *Debugger) handleStats() {
	st := d.engine.Stats()
	fmt.Fprintf(d.output, "  decisions        %d\n", st.Decisions)
	fmt.Fprintf(d.output, "  clicks replayed  %d\n", st.Replayed)
	fmt.Fprintf(d.output, "  skipped          %d\n", len(st.Skipped))
	fmt.Fprintf(d.output, "  redundant backs  %d\n", st.RedundantBacks)
	fmt.Fprintf(d.output, "  deferred retries %d\n", st.DeferredRetries)
	fmt.Fprintf(d.output, "  recoveries       %d\n", st.Recoveries)
	fmt.Fprintf(d.output, "  unrecoverable    %v\n", st.Unrecoverable)
	fmt.Fprintf(d.output, "  replay ratio     %.1f%%\n", st.ReplayRatio*100)
}

// handleHistory shows the executed steps.
func (d *Debugger) handleHistory() {
	steps := d.runner.Steps()
	if len(steps) == 0 {
		fmt.Fprintf(d.output, "No steps executed yet.\n")
		return
	}
	for _, rec := range steps {
		printStep(d, rec)
	}
}

// handleHelp prints available commands.
func (d *Debugger) handleHelp() {
	help := `Commands:
  next, n        Observe the device, decide and execute one action
  continue, c    Run until the session terminates
  peek           Show the next recorded action
  where, w       Show the cursor position
  skipped, s     List skipped actions and the retry candidate
  stats          Show replay counters
  history, h     Show executed steps
  help, ?        Show this help
  quit, q        Exit the debugger
`
	fmt.Fprint(d.output, help)
}
