package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leonbett/droidmate/pkg/diag"
)

var eventsCmd = &cobra.Command{
	Use:   "events [trace.jsonl]",
	Short: "Summarize a diagnostics file written by replay --trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	events, err := diag.ReadFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	sessions := map[string]bool{}
	counts := map[diag.EventType]int{}
	var last *diag.Event
	for i := range events {
		e := &events[i]
		sessions[e.SessionID] = true
		counts[e.Type]++
		if e.Type == diag.EventSessionComplete {
			last = e
		}
	}

	fmt.Fprintf(out, "%d events, %d session(s)\n", len(events), len(sessions))
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %-20s %d\n", t, counts[diag.EventType(t)])
	}

	if last == nil {
		fmt.Fprintln(out, "⚠ no completed session")
		return nil
	}
	fmt.Fprintf(out, "last session %s: %v after %v steps", last.SessionID, last.Data["status"], last.Data["steps"])
	if ratio, ok := last.Data["replay_ratio"].(float64); ok {
		fmt.Fprintf(out, ", replay ratio %.1f%%", ratio*100)
	}
	fmt.Fprintln(out)
	return nil
}
