package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/playback"
)

// Status is what happened to a recorded action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReplayed  Status = "replayed"
	StatusSkipped   Status = "skipped"
	StatusRecovered Status = "recovered"
	StatusAbandoned Status = "abandoned"
)

// Row is one recorded action.
type Row struct {
	Pos    playback.Position
	Label  string
	Status Status
	Tag    string
	Note   string
}

// Source loads the diagnostics stream. It is called on start and on reload.
type Source func() ([]diag.Event, error)

// Model is the Bubble Tea model of the viewer.
type Model struct {
	pkg       string
	rows      []Row
	index     map[playback.Position]int
	source    Source
	applied   int
	selected  int
	session   string
	status    string
	ratio     float64
	failures  int
	recovered int
	err       error

	filter    textinput.Model
	searching bool

	overlay bool
	vp      viewport.Model

	width  int
	height int
}

// NewModel lays out the recorded traces of pkg with every row pending.
func NewModel(pkg string, traces []model.Trace, source Source) Model {
	m := Model{
		pkg:    pkg,
		index:  make(map[playback.Position]int),
		source: source,
		status: "idle",
		width:  80,
		height: 24,
	}
	for ti, t := range traces {
		for ai, rec := range t {
			pos := playback.Position{Trace: ti, Action: ai}
			m.index[pos] = len(m.rows)
			m.rows = append(m.rows, Row{Pos: pos, Label: rec.String(), Status: StatusPending})
		}
	}
	ti := textinput.New()
	ti.Placeholder = "filter rows"
	ti.Prompt = "/ "
	m.filter = ti
	m.vp = viewport.New(m.width, m.height-4)
	return m
}

// eventsMsg delivers a (re)loaded diagnostics stream.
type eventsMsg struct {
	events []diag.Event
	err    error
}

func (m Model) load() tea.Cmd {
	src := m.source
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		events, err := src()
		return eventsMsg{events: events, err: err}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width - 4
		m.vp.Height = msg.Height - 6
		if m.overlay {
			m.vp.SetContent(m.renderSummary())
		}

	case eventsMsg:
		m.err = msg.err
		if msg.err == nil {
			// The stream is append-only: apply only what is new.
			for _, evt := range msg.events[min(m.applied, len(msg.events)):] {
				m.ApplyEvent(evt)
			}
			m.applied = len(msg.events)
		}

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.overlay {
			switch {
			case key.Matches(msg, keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, keys.Close), key.Matches(msg, keys.Summary):
				m.overlay = false
				return m, nil
			}
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.move(-1)
		case key.Matches(msg, keys.Down):
			m.move(1)
		case key.Matches(msg, keys.PgUp):
			m.move(-m.listHeight())
		case key.Matches(msg, keys.PgDown):
			m.move(m.listHeight())
		case key.Matches(msg, keys.Search):
			m.searching = true
			return m, m.filter.Focus()
		case key.Matches(msg, keys.Summary):
			m.overlay = true
			m.vp.SetContent(m.renderSummary())
			m.vp.GotoTop()
		case key.Matches(msg, keys.Reload):
			return m, m.load()
		}
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.filter.Blur()
		m.selected = 0
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.selected = 0
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.selected = 0
	return m, cmd
}

func (m *Model) move(delta int) {
	n := len(m.visible())
	if n == 0 {
		m.selected = 0
		return
	}
	m.selected = max(0, min(n-1, m.selected+delta))
}

// ApplyEvent folds one diagnostics event into the rows.
func (m *Model) ApplyEvent(evt diag.Event) {
	switch evt.Type {
	case diag.EventSessionStart:
		m.status = "running"
		m.session = evt.SessionID
		if id, ok := evt.Data["session_id"].(string); ok && id != "" {
			m.session = id
		}
		return
	case diag.EventSessionComplete:
		m.status, _ = evt.Data["status"].(string)
		m.ratio, _ = evt.Data["replay_ratio"].(float64)
		return
	case diag.EventActionFailed:
		m.failures++
		return
	case diag.EventUnrecoverable:
		trace, ok := intField(evt.Data, "trace")
		if !ok {
			return
		}
		reason, _ := evt.Data["reason"].(string)
		for i := range m.rows {
			r := &m.rows[i]
			if r.Pos.Trace == trace && r.Status == StatusPending {
				r.Status = StatusAbandoned
				r.Note = reason
			}
		}
		return
	}

	row := m.rowAt(evt.Data)
	if row == nil {
		return
	}
	switch evt.Type {
	case diag.EventDecision:
		row.Tag, _ = evt.Data["tag"].(string)
		if row.Tag == playback.TagPreviouslySkipped {
			row.Status = StatusRecovered
		} else if row.Status != StatusRecovered {
			row.Status = StatusReplayed
		}
	case diag.EventSkip, diag.EventRedundantBack:
		row.Status = StatusSkipped
		row.Note, _ = evt.Data["reason"].(string)
	case diag.EventDeferredRetry:
		row.Status = StatusRecovered
		row.Note = "retried after skip"
	case diag.EventRecovery:
		m.recovered++
		row.Status = StatusRecovered
		row.Note = "rewound here after crash"
	}
}

func (m *Model) rowAt(data map[string]any) *Row {
	t, ok1 := intField(data, "trace")
	a, ok2 := intField(data, "action")
	if !ok1 || !ok2 {
		return nil
	}
	i, ok := m.index[playback.Position{Trace: t, Action: a}]
	if !ok {
		return nil
	}
	return &m.rows[i]
}

// intField reads an integer that may have been decoded from JSON.
func intField(data map[string]any, k string) (int, bool) {
	switch v := data[k].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Rows returns the current row states.
func (m Model) Rows() []Row {
	return append([]Row(nil), m.rows...)
}

// Counts tallies rows per status.
func (m Model) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, r := range m.rows {
		out[r.Status]++
	}
	return out
}

func (m Model) visible() []Row {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if q == "" {
		return m.rows
	}
	var out []Row
	for _, r := range m.rows {
		hay := strings.ToLower(r.Label + " " + string(r.Status) + " " + r.Tag + " " + r.Note + " " + r.Pos.String())
		if strings.Contains(hay, q) {
			out = append(out, r)
		}
	}
	return out
}

func (m Model) listHeight() int {
	return max(1, m.height-6)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	title := fmt.Sprintf("droidreplay view: %s", m.pkg)
	if m.session != "" {
		title += "  " + m.session
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n\n")

	if m.overlay {
		b.WriteString(panelBorder.Render(m.vp.View()))
		b.WriteString("\n")
		b.WriteString("  " + keyBarText(true))
		return b.String()
	}

	rows := m.visible()
	start := 0
	if h := m.listHeight(); m.selected >= h {
		start = m.selected - h + 1
	}
	end := min(len(rows), start+m.listHeight())
	lastTrace := -1
	for i := start; i < end; i++ {
		r := rows[i]
		if r.Pos.Trace != lastTrace {
			lastTrace = r.Pos.Trace
			b.WriteString(traceHeader.Render(fmt.Sprintf("  trace %d", r.Pos.Trace)))
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s %-6s %-28s %s", statusGlyph(r.Status), r.Pos, r.Label, r.Tag)
		if r.Note != "" {
			line += "  " + r.Note
		}
		if i == m.selected {
			b.WriteString(rowSelected.Render(GlyphSelected + " " + line))
		} else {
			b.WriteString("  " + rowStyle(r.Status).Render(line))
		}
		b.WriteString("\n")
	}
	if len(rows) == 0 {
		b.WriteString(statusBar.Render("  no rows"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.searching || m.filter.Value() != "" {
		b.WriteString("  " + m.filter.View() + "\n")
	}
	c := m.Counts()
	line := fmt.Sprintf("  %s  %d replayed  %d skipped  %d recovered  %d pending",
		m.status, c[StatusReplayed], c[StatusSkipped], c[StatusRecovered], c[StatusPending])
	if m.err != nil {
		line += "  error: " + m.err.Error()
	}
	b.WriteString(statusBar.Render(line))
	b.WriteString("\n  " + keyBarText(false))
	return b.String()
}

// SummaryMarkdown describes the session as markdown.
func (m Model) SummaryMarkdown() string {
	c := m.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.pkg)
	if m.session != "" {
		fmt.Fprintf(&b, "Session `%s`, status **%s**.\n\n", m.session, m.status)
	}
	b.WriteString("| Status | Actions |\n|---|---|\n")
	for _, s := range []Status{StatusReplayed, StatusRecovered, StatusSkipped, StatusAbandoned, StatusPending} {
		fmt.Fprintf(&b, "| %s %s | %d |\n", statusGlyph(s), s, c[s])
	}
	fmt.Fprintf(&b, "\n- crash recoveries: %d\n- failed device actions: %d\n", m.recovered, m.failures)
	if m.status != "" && m.status != "running" && m.status != "idle" {
		fmt.Fprintf(&b, "- replay ratio: %.1f%%\n", m.ratio*100)
	}
	return b.String()
}

func (m Model) renderSummary() string {
	md := m.SummaryMarkdown()
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(20, m.vp.Width-2)),
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

// Run starts the viewer full screen.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
