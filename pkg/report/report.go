// Package report summarizes a finished replay session.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/leonbett/droidmate/pkg/explore"
	"github.com/leonbett/droidmate/pkg/playback"
)

// Summary is the aggregated view of one session.
type Summary struct {
	SessionID      string         `json:"session_id"`
	Package        string         `json:"package,omitempty"`
	Status         string         `json:"status"`
	Steps          int            `json:"steps"`
	Resets         int            `json:"resets"`
	Backs          int            `json:"backs"`
	Clicks         map[string]int `json:"clicks"`
	Replays        int            `json:"replays"`
	Skipped        []string       `json:"skipped,omitempty"`
	RedundantBacks int            `json:"redundant_backs"`
	Retries        int            `json:"deferred_retries"`
	Recoveries     int            `json:"recoveries"`
	Unrecoverable  []int          `json:"unrecoverable,omitempty"`
	Errors         []string       `json:"errors,omitempty"`
	ReplayRatio    float64        `json:"replay_ratio"`
	DurationMS     int64          `json:"duration_ms"`
}

// Build aggregates a runner result.
func Build(pkg string, res *explore.Result) *Summary {
	s := &Summary{
		SessionID:      res.SessionID,
		Package:        pkg,
		Status:         string(res.Status),
		Steps:          len(res.Steps),
		Clicks:         make(map[string]int),
		RedundantBacks: res.Stats.RedundantBacks,
		Retries:        res.Stats.DeferredRetries,
		Recoveries:     res.Stats.Recoveries,
		Unrecoverable:  res.Stats.Unrecoverable,
		Errors:         res.Errors,
		ReplayRatio:    res.Stats.ReplayRatio,
		DurationMS:     res.Duration.Milliseconds(),
	}
	for _, step := range res.Steps {
		switch step.Action.Kind {
		case playback.ActionReset:
			s.Resets++
		case playback.ActionPressBack:
			s.Backs++
		case playback.ActionClick:
			s.Clicks[step.Action.Tag]++
		case playback.ActionReplay:
			s.Replays++
		}
	}
	for _, p := range res.Stats.Skipped {
		s.Skipped = append(s.Skipped, p.String())
	}
	return s
}

// TotalClicks sums clicks over all confidence tags.
func (s *Summary) TotalClicks() int {
	n := 0
	for _, c := range s.Clicks {
		n += c
	}
	return n
}

func (s *Summary) rows() [][2]string {
	rows := [][2]string{
		{"Session", s.SessionID},
		{"Package", s.Package},
		{"Status", s.Status},
		{"Steps", fmt.Sprint(s.Steps)},
		{"Resets", fmt.Sprint(s.Resets)},
		{"Back presses", fmt.Sprint(s.Backs)},
	}
	tags := make([]string, 0, len(s.Clicks))
	for tag := range s.Clicks {
		tags = append(tags, tag)
	}
	// Highest confidence first; the retry tag sorts last.
	sort.Slice(tags, func(i, j int) bool { return tagRank(tags[i]) > tagRank(tags[j]) })
	for _, tag := range tags {
		rows = append(rows, [2]string{"Clicks " + tag, fmt.Sprint(s.Clicks[tag])})
	}
	if s.Replays > 0 {
		rows = append(rows, [2]string{"Verbatim replays", fmt.Sprint(s.Replays)})
	}
	rows = append(rows,
		[2]string{"Skipped", fmt.Sprintf("%d %s", len(s.Skipped), strings.Join(s.Skipped, " "))},
		[2]string{"Redundant backs", fmt.Sprint(s.RedundantBacks)},
		[2]string{"Deferred retries", fmt.Sprint(s.Retries)},
		[2]string{"Recoveries", fmt.Sprint(s.Recoveries)},
		[2]string{"Unrecoverable", fmt.Sprint(len(s.Unrecoverable))},
		[2]string{"Replay ratio", fmt.Sprintf("%.1f%%", s.ReplayRatio*100)},
	)
	return rows
}

func tagRank(tag string) float64 {
	var v float64
	if _, err := fmt.Sscanf(tag, "[%g]", &v); err != nil {
		return -1
	}
	return v
}

// Text writes an aligned two-column table.
func (s *Summary) Text(w io.Writer) error {
	rows := s.rows()
	width := 0
	for _, r := range rows {
		if n := runewidth.StringWidth(r[0]); n > width {
			width = n
		}
	}
	for _, r := range rows {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(r[0]))
		if _, err := fmt.Fprintf(w, "  %s%s  %s\n", r[0], pad, strings.TrimSpace(r[1])); err != nil {
			return err
		}
	}
	for _, e := range s.Errors {
		if _, err := fmt.Fprintf(w, "  ✗ %s\n", e); err != nil {
			return err
		}
	}
	return nil
}

// Markdown renders the summary as a markdown document.
func (s *Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Replay of %s\n\n", s.Package)
	b.WriteString("| Metric | Value |\n|---|---|\n")
	for _, r := range s.rows()[1:] {
		fmt.Fprintf(&b, "| %s | %s |\n", r[0], strings.TrimSpace(r[1]))
	}
	if len(s.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

// Render styles the markdown for a terminal of the given width. It falls
// back to plain markdown when rendering fails.
func (s *Summary) Render(width int) string {
	md := s.Markdown()
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// JSON encodes the summary.
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
