package diagram

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/leonbett/droidmate/pkg/model"
)

func sampleTraces() []model.Trace {
	save := &model.Widget{ID: "w-save", Text: "Save"}
	icon := &model.Widget{ID: "w-icon"}
	return []model.Trace{
		{
			{Kind: model.KindReset, ResultState: "main"},
			{Kind: model.KindClick, Target: save, ResultState: "editor"},
			{Kind: model.KindPressBack, ResultState: "main"},
		},
		{
			{Kind: model.KindReset, ResultState: "main"},
			{Kind: model.KindClick, Target: icon},
			{Kind: model.KindTerminate},
		},
	}
}

func TestGenerateMermaid_Lanes(t *testing.T) {
	out, err := Generate("com.example.notes", sampleTraces(), FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "flowchart TD\n") {
		t.Error("missing flowchart header")
	}
	for _, want := range []string{
		`subgraph trace_0 ["Trace 0"]`,
		`subgraph trace_1 ["Trace 1"]`,
		"t0_a0 --> t0_a1",
		"t1_a1 --> t1_a2",
		"trace_0 -.-> trace_1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "t0_a2 --> t1_a0") {
		t.Error("traces must not be chained node to node")
	}
}

func TestGenerateMermaid_Shapes(t *testing.T) {
	out, _ := Generate("pkg", sampleTraces(), FormatMermaid)

	if !strings.Contains(out, `t0_a0(["⟲ reset<br/>→ main"])`) {
		t.Errorf("reset node shape, got:\n%s", out)
	}
	if !strings.Contains(out, `t0_a1["▶ click Save<br/>→ editor"]`) {
		t.Errorf("click node, got:\n%s", out)
	}
	if !strings.Contains(out, `t1_a1["▶ click w-icon"]`) {
		t.Errorf("click without text falls back to the widget id, got:\n%s", out)
	}
	if !strings.Contains(out, `t1_a2((("■ terminate")))`) {
		t.Errorf("terminate node shape, got:\n%s", out)
	}
	if !strings.Contains(out, "style t0_a2 fill:#e60") {
		t.Error("missing press_back style")
	}
}

func TestGenerateMermaid_Escaping(t *testing.T) {
	w := &model.Widget{ID: "w", Text: `Say "hi"`}
	out, _ := Generate("pkg", []model.Trace{{{Kind: model.KindClick, Target: w}}}, FormatMermaid)
	if !strings.Contains(out, "#quot;hi#quot;") {
		t.Errorf("quotes not escaped, got:\n%s", out)
	}
}

func TestGenerateASCII_Boxes(t *testing.T) {
	out, err := Generate("com.example.notes", sampleTraces(), FormatASCII)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"com.example.notes", "· trace 0 ·", "· trace 1 ·", "⟲ reset", "→ editor", "■ terminate"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}

	// Every box row has the same display width.
	var width int
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "│") && !strings.HasPrefix(trimmed, "┌") {
			continue
		}
		if !strings.HasSuffix(trimmed, "│") && !strings.HasSuffix(trimmed, "┐") {
			continue
		}
		w := runewidth.StringWidth(line)
		if width == 0 {
			width = w
		}
		if w != width {
			t.Errorf("line %q has width %d, want %d", line, w, width)
		}
	}
	if width == 0 {
		t.Fatal("no box rows found")
	}
}

func TestGenerateASCII_Empty(t *testing.T) {
	out, _ := Generate("pkg", []model.Trace{{}, {}}, FormatASCII)
	if out != "pkg (no recorded actions)\n" {
		t.Errorf("out = %q", out)
	}
}

func TestGenerate_UnsupportedFormat(t *testing.T) {
	if _, err := Generate("pkg", nil, Format("svg")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 8); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
