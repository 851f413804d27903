package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const tickInterval = 250 * time.Millisecond

// TickMsg is sent on every tick interval, after Window has advanced the frame
// counter and expired the flash message.
type TickMsg struct{}

// FooterKey describes a single keybinding hint shown in the footer.
type FooterKey struct {
	Key  string
	Desc string
}

// Screen renders the content area between header and footer.
type Screen interface {
	Update(msg tea.Msg, w *Window) tea.Cmd
	View(w *Window) string
	// FooterKeys returns keybinding hints shown before the quit key.
	FooterKeys(w *Window) []FooterKey
	// FooterStatus returns an optional left-side indicator for the footer.
	FooterStatus(w *Window) string
}

// Window is the top-level tea.Model. It owns the header, footer, sizing,
// tick and flash/error state and delegates content to a Screen.
type Window struct {
	header    *HeaderInfo
	screen    Screen
	width     int
	height    int
	vpHeight  int
	tickFrame int
	flash     string
	flashExp  time.Time
	err       error
}

func NewWindow(header *HeaderInfo, screen Screen) *Window {
	return &Window{header: header, screen: screen}
}

func (w *Window) Width() int     { return w.width }
func (w *Window) Height() int    { return w.height }
func (w *Window) VpHeight() int  { return w.vpHeight }
func (w *Window) TickFrame() int { return w.tickFrame }
func (w *Window) Flash() string  { return w.flash }
func (w *Window) Err() error     { return w.err }

// IntervalElapsed returns true on ticks that fall on the given interval.
func (w *Window) IntervalElapsed(interval time.Duration) bool {
	n := int(interval / tickInterval)
	if n <= 1 {
		return true
	}
	return w.tickFrame%n == 0
}

func (w *Window) SetFlash(msg string) {
	w.flash = msg
	w.flashExp = time.Now().Add(2 * time.Second)
}

func (w *Window) SetError(err error) { w.err = err }

func (w *Window) headerHeight() int {
	return strings.Count(RenderHeader(w.header, w.width, w.height), "\n") + 1
}

func doTick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (w *Window) Init() tea.Cmd {
	return tea.Batch(doTick(), tea.WindowSize())
}

func (w *Window) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return w, tea.Quit
		}

	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
		// One separator line after the header and one footer line.
		w.vpHeight = max(w.height-w.headerHeight()-2, 1)

	case TickMsg:
		w.tickFrame++
		if w.flash != "" && time.Now().After(w.flashExp) {
			w.flash = ""
		}
		cmds = append(cmds, doTick())
	}

	if cmd := w.screen.Update(msg, w); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return w, tea.Batch(cmds...)
}

func (w *Window) View() string {
	if w.width == 0 {
		return "Starting..."
	}
	return RenderHeader(w.header, w.width, w.height) + "\n" + w.screen.View(w) + "\n" + w.renderFooter()
}

func (w *Window) renderFooter() string {
	keyStyle := lipgloss.NewStyle().Foreground(ColorCyan)
	descStyle := lipgloss.NewStyle().Foreground(ColorField)

	// Error wins over flash.
	left := w.screen.FooterStatus(w)
	var status string
	if w.err != nil {
		status = lipgloss.NewStyle().Foreground(ColorError).Render(fmt.Sprintf("admin API error: %v", w.err))
	} else if w.flash != "" && time.Now().Before(w.flashExp) {
		status = lipgloss.NewStyle().Foreground(ColorOrange).Render(w.flash)
	}
	if left != "" && status != "" {
		left += " "
	}
	left += status

	var keys []string
	for _, fk := range w.screen.FooterKeys(w) {
		keys = append(keys, keyStyle.Render(fk.Key)+" "+descStyle.Render(fk.Desc))
	}
	keys = append(keys, keyStyle.Render("q")+" "+descStyle.Render("quit"))
	right := strings.Join(keys, "  ")

	gap := max(w.width-ansi.StringWidth(left)-ansi.StringWidth(right), 2)
	return left + strings.Repeat(" ", gap) + right
}
