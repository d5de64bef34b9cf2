package watch

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rlmkit/recurse/internal/ledger"
)

type tickMsg time.Time

type recordsMsg struct {
	records []ledger.Record
	err     error
}

// Model tails a trace ledger file and renders completions as they land.
type Model struct {
	ledgerPath string
	traceID    string // optional filter

	width  int
	height int

	records  []ledger.Record
	viewport viewport.Model
	spinner  spinner.Model
	theme    Theme

	lastError string
}

// New creates a live viewer for the ledger at path. traceID, when non-empty,
// filters the view down to one tree.
func New(ledgerPath, traceID string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		ledgerPath: ledgerPath,
		traceID:    traceID,
		viewport:   viewport.New(80, 24),
		spinner:    sp,
		theme:      NewDefaultTheme(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadRecords,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3 // header + footer
		m.refresh()

	case tickMsg:
		return m, tea.Batch(
			m.loadRecords,
			tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case recordsMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.lastError = ""
			atBottom := m.viewport.AtBottom()
			m.records = msg.records
			m.refresh()
			if atBottom {
				m.viewport.GotoBottom()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) View() string {
	title := m.theme.Title.Render("recurse trace watch")
	scope := m.theme.Dim.Render(m.ledgerPath)
	if m.traceID != "" {
		scope += m.theme.Dim.Render(" trace=") + m.theme.Highlight.Render(shortID(m.traceID))
	}

	footer := m.theme.Dim.Render(fmt.Sprintf("%d records · q to quit", len(m.records)))
	if m.lastError != "" {
		footer = m.theme.ExitFailed.Render(m.lastError)
	}
	if len(m.records) == 0 {
		footer = m.spinner.View() + m.theme.Dim.Render(" waiting for completions…")
	}

	return title + " " + scope + "\n" + m.viewport.View() + "\n" + footer
}

func (m *Model) refresh() {
	m.viewport.SetContent(RenderRecords(m.theme, m.records))
}

// loadRecords re-reads the ledger. The file is append-only, so a full
// re-read stays cheap for the tree sizes a watcher looks at.
func (m *Model) loadRecords() tea.Msg {
	if _, err := os.Stat(m.ledgerPath); err != nil {
		// Not written yet; keep waiting.
		return recordsMsg{records: nil}
	}

	var (
		records []ledger.Record
		err     error
	)
	if m.traceID != "" {
		records, err = ledger.ReadTrace(m.ledgerPath, m.traceID)
	} else {
		records, err = ledger.Read(m.ledgerPath)
	}
	return recordsMsg{records: records, err: err}
}
