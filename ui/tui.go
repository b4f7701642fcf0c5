package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/franksops/skycp/engine"
)

// TUIModel implements the tea.Model interface over job progress snapshots.
type TUIModel struct {
	title       string
	snap        engine.Snapshot
	rate        rateMeter
	done        bool
	err         error
	interrupted bool

	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	recentStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically with the latest job snapshot.
type TUIUpdateMsg struct {
	Snapshot engine.Snapshot
	At       time.Time
}

// TUIDoneMsg ends the program once the transfer has returned.
type TUIDoneMsg struct {
	Err error
}

// NewTUIModel creates the model for one job. title is shown in the header,
// typically "SRC -> DST".
func NewTUIModel(title string, initial engine.Snapshot) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		title:        title,
		snap:         initial,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		recentStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// Interrupted reports whether the user quit before the transfer finished.
func (m TUIModel) Interrupted() bool { return m.interrupted }

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done {
				m.interrupted = true
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 5
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)

	case TUIUpdateMsg:
		m.snap = msg.Snapshot
		m.rate.observe(msg.Snapshot.BytesCompleted, msg.At)

	case TUIDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	header := fmt.Sprintf("%s skycp %s", m.spinner.View(), m.titleStyle.Render(m.title))
	sb.WriteString(header + "\n")

	info := fmt.Sprintf("ETA: %s | %s | Units: %s/%s | %s / %s",
		formatETA(m.snap.TotalBytes-m.snap.BytesCompleted, m.rate.bytesPerSec),
		formatSpeed(m.rate.bytesPerSec),
		humanize.Comma(int64(m.snap.UnitsCompleted)), humanize.Comma(int64(m.snap.TotalUnits)),
		humanize.IBytes(uint64(m.snap.BytesCompleted)), humanize.IBytes(uint64(m.snap.TotalBytes)))
	if m.snap.UnitsFailed > 0 {
		info += m.errorStyle.Render(fmt.Sprintf(" | Failed: %d", m.snap.UnitsFailed))
	}

	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(m.snap.Fraction()) + "\n\n")

	sb.WriteString("Recently finished:\n")
	var recent strings.Builder
	if len(m.snap.Recent) == 0 {
		recent.WriteString(m.infoStyle.Render("Nothing finished yet..."))
	}
	for i := len(m.snap.Recent) - 1; i >= 0; i-- {
		recent.WriteString(m.recentStyle.Render(truncatePath(m.snap.Recent[i], 60)) + "\n")
	}
	m.viewport.SetContent(recent.String())
	sb.WriteString(m.viewport.View())

	help := m.helpStyle.Render("q/ctrl+c: stop dispatching and quit")
	switch {
	case m.done && m.err != nil:
		help = m.errorStyle.Render("Transfer failed: " + m.err.Error())
	case m.done:
		help = m.successStyle.Render("Transfer complete!")
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func truncatePath(p string, width int) string {
	if len(p) <= width {
		return p
	}
	return "..." + p[len(p)-width+3:]
}

// rateMeter smooths throughput over successive snapshots.
type rateMeter struct {
	lastBytes   int64
	lastAt      time.Time
	bytesPerSec float64
}

func (r *rateMeter) observe(bytes int64, at time.Time) {
	if r.lastAt.IsZero() {
		r.lastBytes, r.lastAt = bytes, at
		return
	}
	dt := at.Sub(r.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	inst := float64(bytes-r.lastBytes) / dt
	if r.bytesPerSec == 0 {
		r.bytesPerSec = inst
	} else {
		r.bytesPerSec = 0.7*r.bytesPerSec + 0.3*inst
	}
	r.lastBytes, r.lastAt = bytes, at
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func formatETA(remainingBytes int64, bytesPerSec float64) string {
	if remainingBytes <= 0 {
		return "0s"
	}
	if bytesPerSec <= 0 {
		return "Calculating..."
	}

	secs := float64(remainingBytes) / bytesPerSec
	if secs > 24*60*60 {
		return "> 1d"
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Second).String()
}
