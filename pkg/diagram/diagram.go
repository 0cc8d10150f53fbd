// Package diagram draws recorded traces as Mermaid flowcharts or ASCII
// boxes, one lane per trace.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/leonbett/droidmate/pkg/model"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram of the traces recorded for pkg.
func Generate(pkg string, traces []model.Trace, format Format) (string, error) {
	if pkg == "" {
		pkg = "app"
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(traces), nil
	case FormatASCII:
		return generateASCII(pkg, traces), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(traces []model.Trace) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for ti, trace := range traces {
		steps := flattenTrace(ti, trace)
		if len(steps) == 0 {
			continue
		}
		fmt.Fprintf(&b, "    subgraph trace_%d [\"Trace %d\"]\n", ti, ti)
		for i, s := range steps {
			b.WriteString("        " + nodeDefinition(s) + "\n")
			if i < len(steps)-1 {
				fmt.Fprintf(&b, "        %s --> %s\n", s.id, steps[i+1].id)
			}
		}
		b.WriteString("    end\n")
		for _, s := range steps {
			if style := kindStyle(s.kind); style != "" {
				fmt.Fprintf(&b, "    style %s %s\n", s.id, style)
			}
		}
	}

	// Lanes follow the recording order.
	for ti := 0; ti+1 < len(traces); ti++ {
		if len(traces[ti]) > 0 && len(traces[ti+1]) > 0 {
			fmt.Fprintf(&b, "    trace_%d -.-> trace_%d\n", ti, ti+1)
		}
	}
	return b.String()
}

func kindStyle(kind model.ActionKind) string {
	switch kind {
	case model.KindReset:
		return "fill:#07a,stroke:#058,color:#fff"
	case model.KindTerminate:
		return "fill:#a0a,stroke:#808,color:#fff"
	case model.KindPressBack:
		return "fill:#e60,stroke:#c40,color:#fff"
	default:
		return ""
	}
}

// --- ASCII ---

func generateASCII(pkg string, traces []model.Trace) string {
	var b strings.Builder

	var lanes [][]diagramStep
	for ti, trace := range traces {
		lanes = append(lanes, flattenTrace(ti, trace))
	}

	total := 0
	for _, l := range lanes {
		total += len(l)
	}
	if total == 0 {
		b.WriteString(pkg + " (no recorded actions)\n")
		return b.String()
	}

	// Uniform box width so every box and connector aligns.
	const indent = 8
	boxWidth := computeUniformBoxWidth(lanes, pkg)
	connCol := indent + 1 + boxWidth/2
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	mid := boxWidth / 2
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + centerPad(pkg, boxWidth) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")

	for ti, steps := range lanes {
		if len(steps) == 0 {
			continue
		}
		b.WriteString(connPad + "│\n")
		b.WriteString(pad + " " + centerPad(fmt.Sprintf("· trace %d ·", ti), boxWidth) + "\n")
		b.WriteString(connPad + "│\n")
		for i, s := range steps {
			writeASCIIStep(&b, s, indent, boxWidth)
			if i < len(steps)-1 {
				b.WriteString(connPad + "│\n")
			}
		}
	}
	return b.String()
}

// computeUniformBoxWidth returns the widest interior width needed across all
// steps and the header.
func computeUniformBoxWidth(lanes [][]diagramStep, name string) int {
	w := 22
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, steps := range lanes {
		for _, s := range steps {
			if sw := stepContentWidth(s); sw > w {
				w = sw
			}
		}
	}
	return w
}

func stepContentWidth(s diagramStep) int {
	w := runewidth.StringWidth(stepLine(s))
	if s.result != "" {
		if rw := runewidth.StringWidth(resultLine(s)); rw > w {
			w = rw
		}
	}
	return w
}

func stepLine(s diagramStep) string   { return fmt.Sprintf(" %s %s ", kindIcon(s.kind), s.label) }
func resultLine(s diagramStep) string { return " → " + s.result }

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

func writeASCIIStep(b *strings.Builder, s diagramStep, indent, boxWidth int) {
	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	content := stepLine(s)
	b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
	b.WriteString(pad + "│" + content + strings.Repeat(" ", boxWidth-runewidth.StringWidth(content)) + "│\n")
	if s.result != "" {
		line := resultLine(s)
		b.WriteString(pad + "│" + line + strings.Repeat(" ", boxWidth-runewidth.StringWidth(line)) + "│\n")
	}
	if s.kind == model.KindTerminate {
		b.WriteString(pad + "└" + strings.Repeat("─", boxWidth) + "┘\n")
		return
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

func kindIcon(kind model.ActionKind) string {
	switch kind {
	case model.KindReset:
		return "⟲"
	case model.KindClick:
		return "▶"
	case model.KindPressBack:
		return "◀"
	case model.KindTerminate:
		return "■"
	default:
		return "○"
	}
}

// --- trace walking helpers ---

type diagramStep struct {
	id     string
	kind   model.ActionKind
	label  string
	result string
}

func flattenTrace(ti int, trace model.Trace) []diagramStep {
	steps := make([]diagramStep, 0, len(trace))
	for ai, rec := range trace {
		steps = append(steps, diagramStep{
			id:     fmt.Sprintf("t%d_a%d", ti, ai),
			kind:   rec.Kind,
			label:  recordLabel(rec),
			result: rec.ResultState,
		})
	}
	return steps
}

func recordLabel(rec model.ActionRecord) string {
	if rec.Target == nil {
		return string(rec.Kind)
	}
	name := rec.Target.Text
	if name == "" {
		name = rec.Target.ID
	}
	return fmt.Sprintf("%s %s", rec.Kind, truncate(name, 30))
}

// --- string helpers ---

func nodeDefinition(s diagramStep) string {
	text := kindIcon(s.kind) + " " + escMermaid(s.label)
	if s.result != "" {
		text += "<br/>→ " + escMermaid(s.result)
	}
	switch s.kind {
	case model.KindReset:
		return fmt.Sprintf(`%s(["%s"])`, s.id, text)
	case model.KindTerminate:
		return fmt.Sprintf(`%s((("%s")))`, s.id, text)
	case model.KindPressBack:
		return fmt.Sprintf(`%s[/"%s"/]`, s.id, text)
	default:
		return fmt.Sprintf(`%s["%s"]`, s.id, text)
	}
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
