package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"halo/clipboard"
	"halo/log"
	"halo/session"
	"halo/transcriber"
	"halo/visualizer"
)

const (
	tuiTickInterval = 50 * time.Millisecond
	noticeTTL       = 2 * time.Second
	minVizRows      = 6
	infoRows        = 7
	transcriptMin   = 24
)

type tickMsg time.Time
type stateMsg transcriber.State
type toggledMsg struct{ err error }

// frameView holds the latest rasterized visualizer frame. The render loop
// writes it and the TUI tick reads it, so a slow terminal never stalls
// rendering.
type frameView struct {
	mu         sync.Mutex
	cols, rows int
	text       string
}

func (v *frameView) setCells(cols, rows int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cols != v.cols || rows != v.rows {
		v.text = ""
	}
	v.cols, v.rows = cols, rows
}

// size is the surface SizeFunc: the panel measured in pixels.
func (v *frameView) size() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return visualizer.CellSize(v.cols, v.rows)
}

func (v *frameView) draw(s *visualizer.Surface) {
	v.mu.Lock()
	cols, rows := v.cols, v.rows
	v.mu.Unlock()

	var text string
	s.View(func(img *image.RGBA) { text = visualizer.Terminal(img, cols, rows) })

	v.mu.Lock()
	if cols == v.cols && rows == v.rows {
		v.text = text
	}
	v.mu.Unlock()
}

func (v *frameView) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

type tuiModel struct {
	ctx     context.Context
	ctrl    *session.Controller
	manager *transcriber.Manager
	view    *frameView
	states  <-chan transcriber.State

	deviceLine string
	modelLine  string

	width, height int
	status        session.Status
	transcript    string
	alert         string
	notice        string
	noticeAt      time.Time
}

func runTUI(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	view := &frameView{}
	surface := visualizer.NewSurface(view.size)
	ctrl := a.newController(ctx, surface, view.draw)
	defer ctrl.Close()

	m := tuiModel{
		ctx:        ctx,
		ctrl:       ctrl,
		manager:    a.manager,
		view:       view,
		states:     a.manager.Subscribe(),
		deviceLine: a.deviceLine(),
		modelLine:  "model: " + strings.TrimPrefix(a.cfg.Transcription.Model, "models/"),
	}
	if !ctrl.HasCredential() {
		m.alert = credentialAlert()
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	stop := startShortcut(ctx, ctrl, func(err error) { p.Send(toggledMsg{err: err}) })
	defer stop()
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func credentialAlert() string {
	return "No Gemini API key configured.\nSet GEMINI_API_KEY or add credential to the config file (halo config init)."
}

func tuiTick() tea.Cmd {
	return tea.Tick(tuiTickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitState(ch <-chan transcriber.State) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ch)
	}
}

// toggle runs off the update loop: Deactivate waits for the render loop,
// which must never wait on the UI.
func (m tuiModel) toggle() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return toggledMsg{err: ctrl.Toggle(ctx)}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tuiTick(), waitState(m.states))
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		cols, rows := m.vizCells()
		m.view.setCells(cols, rows)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.status = m.ctrl.Status()
		m.transcript = m.manager.Buffer().String()
		if m.notice != "" && time.Since(m.noticeAt) > noticeTTL {
			m.notice = ""
		}
		return m, tuiTick()

	case stateMsg:
		m.status = m.ctrl.Status()
		return m, waitState(m.states)

	case toggledMsg:
		m.status = m.ctrl.Status()
		if msg.err != nil {
			log.Warnf("toggle: %v", msg.err)
			if session.IsUserFacing(msg.err) {
				m.alert = alertText(msg.err)
			} else {
				m.setNotice(msg.err.Error())
			}
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.alert != "" {
		// the alert blocks every other key until dismissed
		switch key {
		case "enter", "esc", " ":
			m.alert = ""
		case "q":
			return m, tea.Quit
		}
		return m, nil
	}

	switch key {
	case "q":
		return m, tea.Quit
	case " ", "enter":
		return m, m.toggle()
	case "c":
		m.manager.Buffer().Reset()
		m.transcript = ""
		m.setNotice("transcript cleared")
	case "y":
		if err := clipboard.Copy(m.manager.Buffer().String()); err != nil {
			m.setNotice("copy failed: " + err.Error())
		} else {
			m.setNotice("copied to clipboard")
		}
	}
	return m, nil
}

func (m *tuiModel) setNotice(text string) {
	m.notice = text
	m.noticeAt = time.Now()
}

func alertText(err error) string {
	if errors.Is(err, transcriber.ErrCredentialMissing) {
		return credentialAlert()
	}
	return "Microphone unavailable.\n" + err.Error()
}

// vizCells sizes the visualizer panel: square pixels, at most three fifths
// of the width, leaving room for the info lines below it.
func (m tuiModel) vizCells() (cols, rows int) {
	rows = max(m.height-infoRows, minVizRows)
	cols = min(rows*2, m.width*3/5)
	cols = max(cols, 0)
	return cols, rows
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.alert != "" {
		return m.renderAlert()
	}

	cols, rows := m.vizCells()
	left := m.renderVisualizer(cols, rows) + "\n" + strings.Join(m.infoLines(), "\n")
	leftPanel := lipgloss.NewStyle().
		Width(cols).
		Height(m.height).
		Render(left)

	logWidth := max(m.width-cols-1, transcriptMin)
	rightPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.renderTranscript(logWidth - 2))

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) renderVisualizer(cols, rows int) string {
	frame := m.view.String()
	if m.status.Visualizer == visualizer.StateRendering && frame != "" {
		return frame
	}
	placeholder := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Width(cols).
		Height(rows).
		Align(lipgloss.Center, lipgloss.Center).
		Render("Waiting for audio stream...")
	return placeholder
}

func (m tuiModel) infoLines() []string {
	var lines []string
	lines = append(lines, renderStatus(m.status))

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	lines = append(lines, dim.Render(m.deviceLine), dim.Render(m.modelLine))
	switch {
	case m.notice != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(m.notice))
	case m.status.Active && m.status.NoVoice:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("⚠ no voice detected"))
	default:
		lines = append(lines, "")
	}
	lines = append(lines, "")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := helpStyle.Bold(true)
	lines = append(lines,
		boldStyle.Render("space")+helpStyle.Render(" listen  ")+
			boldStyle.Render("y")+helpStyle.Render(" copy  ")+
			boldStyle.Render("c")+helpStyle.Render(" clear  ")+
			boldStyle.Render("q")+helpStyle.Render(" quit"),
		helpStyle.Render("halo "+version))
	return lines
}

func renderStatus(st session.Status) string {
	switch st.State {
	case transcriber.StateConnecting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true).Render("◌ CONNECTING")
	case transcriber.StateConnected:
		d := time.Duration(0)
		if !st.Since.IsZero() {
			d = time.Since(st.Since)
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true).
			Render(fmt.Sprintf("● LIVE %.1fs", d.Seconds()))
	case transcriber.StateError:
		text := "✕ ERROR"
		if st.Err != nil {
			text += ": " + st.Err.Error()
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render(text)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○ IDLE")
}

// renderTranscript shows the tail of the transcript that fits the panel.
func (m tuiModel) renderTranscript(width int) string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Render("Transcript")
	if m.transcript == "" {
		placeholder := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("Nothing transcribed yet")
		return title + "\n\n" + placeholder
	}

	lines := wrapText(m.transcript, max(width, 10))
	if avail := m.height - 2; avail > 0 && len(lines) > avail {
		lines = lines[len(lines)-avail:]
	}
	textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	var b strings.Builder
	b.WriteString(title + "\n\n")
	for _, line := range lines {
		b.WriteString(textStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m tuiModel) renderAlert() string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(1, 2).
		Width(min(m.width-4, 64))
	hint := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("enter to dismiss, q to quit")
	body := box.Render(m.alert + "\n\n" + hint)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

// wrapText breaks text into lines of at most width runes, preferring to
// split at spaces. Existing newlines are kept.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}
