// Package tui is the interactive monitor: it keeps one GDB server
// connection open, polls the logging status and runs operations on key
// presses.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/tturner/rtegdb/internal/rtedbg"
	"github.com/tturner/rtegdb/internal/script"
)

// Controller performs the monitor operations on one connection. The model
// never issues a call while another one is in flight.
type Controller interface {
	Status(ctx context.Context) (rtedbg.Status, error)
	Transfer(ctx context.Context) (string, error)
	SingleShot(ctx context.Context) (string, error)
	PostMortem(ctx context.Context) (string, error)
	SetFilter(ctx context.Context, value uint32) (string, error)
	RunScript(ctx context.Context, n int) (string, error)
	Benchmark(ctx context.Context) (string, error)
	Header(ctx context.Context) (string, error)
}

const (
	DefaultPollInterval = 350 * time.Millisecond
	maxLogLines         = 12
)

// Options configure the monitor.
type Options struct {
	// Title is shown in the header line, typically host:port.
	Title        string
	PollInterval time.Duration
}

type action struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type logLine struct {
	at    time.Time
	text  string
	isErr bool
}

type tickMsg time.Time

type statusMsg struct {
	status rtedbg.Status
	err    error
}

type resultMsg struct {
	name string
	text string
	err  error
}

// Model is the monitor model.
type Model struct {
	ctx      context.Context
	ctrl     Controller
	styles   Styles
	opts     Options
	status   rtedbg.Status
	statusOK bool
	statusEr error
	busy     bool
	running  string
	queued   *action
	output   string
	log      []logLine
	form     *huh.Form
	showHelp bool
	quitting bool
	width    int
}

// NewModel creates the monitor model.
func NewModel(ctx context.Context, ctrl Controller, opts Options) *Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Model{
		ctx:    ctx,
		ctrl:   ctrl,
		styles: DefaultStyles,
		opts:   opts,
		width:  80,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.busy = true
	return tea.Batch(m.statusCmd(), m.tickCmd())
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) statusCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		st, err := ctrl.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		if m.busy || m.quitting {
			return m, m.tickCmd()
		}
		m.busy = true
		return m, tea.Batch(m.statusCmd(), m.tickCmd())

	case statusMsg:
		m.busy = false
		if m.quitting {
			return m, tea.Quit
		}
		m.statusEr = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.statusOK = true
		}
		return m, m.next()

	case resultMsg:
		m.busy = false
		m.running = ""
		if m.quitting {
			return m, tea.Quit
		}
		if msg.err != nil {
			m.addLog(true, "%s failed: %v", msg.name, msg.err)
		} else {
			if msg.text != "" {
				m.output = msg.text
				for _, line := range strings.Split(msg.text, "\n") {
					m.addLog(false, "%s", line)
				}
			}
			m.addLog(false, "%s done", msg.name)
		}
		return m, m.next()

	case clipboardCopyMsg:
		if msg.err != nil {
			m.addLog(true, "clipboard: %v", msg.err)
		} else {
			m.addLog(false, "copied %d characters to the clipboard", len(msg.content))
		}
		return m, nil
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	if km, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(km)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, m.quit()
	case "esc":
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		return m, m.quit()
	case "?":
		m.showHelp = !m.showHelp
	case " ", "space":
		return m, m.start(action{"transfer", m.ctrl.Transfer})
	case "s", "S":
		return m, m.start(action{"single-shot", m.ctrl.SingleShot})
	case "p", "P":
		return m, m.start(action{"post-mortem", m.ctrl.PostMortem})
	case "b", "B":
		return m, m.start(action{"benchmark", m.ctrl.Benchmark})
	case "h", "H":
		return m, m.start(action{"header", m.ctrl.Header})
	case "f", "F":
		return m, m.openFilterForm()
	case "c":
		text := m.output
		if text == "" {
			text = m.statusText()
		}
		return m, copyToClipboard(text)
	default:
		if s := msg.String(); len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
			n := int(s[0] - '0')
			return m, m.start(action{
				name: fmt.Sprintf("%d.cmd", n),
				run:  func(ctx context.Context) (string, error) { return m.ctrl.RunScript(ctx, n) },
			})
		}
	}
	return m, nil
}

// quit ends the program once no call is in flight; the session is closed
// only after the running action has returned.
func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.queued = nil
	if m.busy {
		return nil
	}
	return tea.Quit
}

// start runs a at once or queues it behind the call in flight. Only the
// latest key press is kept.
func (m *Model) start(a action) tea.Cmd {
	if m.quitting {
		return nil
	}
	if m.busy {
		m.queued = &a
		return nil
	}
	m.busy = true
	m.running = a.name
	ctx := m.ctx
	return func() tea.Msg {
		text, err := a.run(ctx)
		return resultMsg{name: a.name, text: text, err: err}
	}
}

func (m *Model) next() tea.Cmd {
	if m.queued == nil {
		return nil
	}
	a := *m.queued
	m.queued = nil
	return m.start(a)
}

func (m *Model) openFilterForm() tea.Cmd {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("esc", "ctrl+c"))
	m.form = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Key("filter").
			Title("Message filter").
			Description("32-bit hex value. Filter 0 is the most significant bit.").
			Placeholder(fmt.Sprintf("0x%08X", m.status.Header.Filter)).
			Validate(func(s string) error {
				_, err := script.ParseHex(s)
				return err
			}),
	)).WithKeyMap(km).WithShowHelp(false)
	return m.form.Init()
}

func (m *Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		text := m.form.GetString("filter")
		m.form = nil
		value, err := script.ParseHex(text)
		if err != nil {
			m.addLog(true, "filter: %v", err)
			return m, nil
		}
		return m, m.start(action{
			name: fmt.Sprintf("filter 0x%08X", value),
			run:  func(ctx context.Context) (string, error) { return m.ctrl.SetFilter(ctx, value) },
		})
	case huh.StateAborted:
		m.form = nil
		return m, nil
	}
	return m, cmd
}

func (m *Model) addLog(isErr bool, format string, args ...any) {
	m.log = append(m.log, logLine{at: time.Now(), text: fmt.Sprintf(format, args...), isErr: isErr})
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *Model) statusText() string {
	h := m.status.Header
	return fmt.Sprintf("mode %s, filter 0x%08X, last index %d, buffer %d words, usage %d%%",
		h.Mode(), h.Filter, h.LastIndex, h.BufferSize, m.status.Usage)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting && !m.busy {
		return ""
	}
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("rtegdb monitor"))
	if m.opts.Title != "" {
		b.WriteString(s.Dim.Render(m.opts.Title))
	}
	b.WriteString("\n\n")

	var panel strings.Builder
	icon := "idle"
	switch {
	case m.statusEr != nil:
		icon = "error"
	case m.running != "":
		icon = "busy"
	case m.statusOK:
		icon = "ok"
	}
	state := "waiting for status"
	if m.statusEr != nil {
		state = m.statusEr.Error()
	} else if m.statusOK {
		state = "connected"
	}
	fmt.Fprintf(&panel, "%s %s\n", StatusIcon(icon, s), state)
	if m.statusOK {
		h := m.status.Header
		fmt.Fprintf(&panel, "%s%s\n", s.Label.Render("Mode"), h.Mode())
		fmt.Fprintf(&panel, "%s0x%08X\n", s.Label.Render("Filter"), h.Filter)
		fmt.Fprintf(&panel, "%s%d / %d words\n", s.Label.Render("Last index"), h.LastIndex, h.BufferSize)
		if m.status.SingleShot {
			fmt.Fprintf(&panel, "%s%s %d%%\n", s.Label.Render("Buffer"), m.gauge(m.status.Usage, 30), m.status.Usage)
		}
		if !m.status.Valid {
			panel.WriteString(s.Warning.Render("header does not describe a valid logging structure") + "\n")
		}
	}
	if m.running != "" {
		fmt.Fprintf(&panel, "%s%s\n", s.Label.Render("Running"), s.Warning.Render(m.running))
	}
	b.WriteString(s.Panel.Width(max(m.width-4, 40)).Render(strings.TrimRight(panel.String(), "\n")))
	b.WriteString("\n")

	if m.form != nil {
		b.WriteString("\n" + m.form.View() + "\n")
	} else if m.showHelp {
		b.WriteString("\n" + m.helpView() + "\n")
	}

	for _, line := range m.log {
		style := s.Base
		if line.isErr {
			style = s.Error
		}
		b.WriteString(s.Dim.Render(line.at.Format("15:04:05")) + " " + style.Render(line.text) + "\n")
	}

	b.WriteString("\n" + m.footer())
	return b.String()
}

func (m *Model) gauge(percent uint32, width int) string {
	filled := int(percent) * width / 100
	return m.styles.Gauge.Render(strings.Repeat("█", filled)) +
		m.styles.GaugeEmpty.Render(strings.Repeat("░", width-filled))
}

var keyHelp = [][2]string{
	{"space", "transfer data"},
	{"F", "set message filter"},
	{"S", "single-shot mode"},
	{"P", "post-mortem mode"},
	{"0-9", "run N.cmd"},
	{"B", "benchmark"},
	{"H", "header info"},
	{"c", "copy last output"},
	{"?", "help"},
	{"q/esc", "quit"},
}

func (m *Model) helpView() string {
	var b strings.Builder
	for _, kh := range keyHelp {
		fmt.Fprintf(&b, "  %s %s\n", m.styles.KeyBinding.Width(6).Render(kh[0]), m.styles.KeyHint.Render(kh[1]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) footer() string {
	if m.quitting {
		text := "quitting"
		if m.running != "" {
			text = "quitting after " + m.running + " finishes"
		}
		return m.styles.Footer.Render(text)
	}
	parts := make([]string, 0, 5)
	for _, kh := range []int{0, 1, 2, 3, 8} {
		parts = append(parts, m.styles.KeyBinding.Render(keyHelp[kh][0])+" "+m.styles.KeyHint.Render(keyHelp[kh][1]))
	}
	return m.styles.Footer.Render(strings.Join(parts, "  "))
}
