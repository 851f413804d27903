package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

type stubScreen struct {
	msgs []tea.Msg
}

func (s *stubScreen) Update(msg tea.Msg, w *Window) tea.Cmd {
	s.msgs = append(s.msgs, msg)
	return nil
}
func (s *stubScreen) View(w *Window) string { return "stub" }
func (s *stubScreen) FooterKeys(w *Window) []FooterKey {
	return []FooterKey{{Key: "r", Desc: "reload"}}
}
func (s *stubScreen) FooterStatus(w *Window) string { return "~" }

func newStubWindow() (*Window, *stubScreen) {
	s := &stubScreen{}
	return NewWindow(&HeaderInfo{Admin: "127.0.0.1:7780"}, s), s
}

func TestWindow_Init(t *testing.T) {
	w, _ := newStubWindow()
	assert.NotNil(t, w.Init())
}

func TestWindow_WindowSizeMsg(t *testing.T) {
	w, s := newStubWindow()
	updated, _ := w.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	win := updated.(*Window)
	assert.Equal(t, 100, win.Width())
	assert.Equal(t, 40, win.Height())
	assert.Equal(t, 40-4-2, win.VpHeight(), "full header is four lines")
	assert.Len(t, s.msgs, 1, "size is forwarded to the screen")
}

func TestWindow_TickIncrementsFrame(t *testing.T) {
	w, _ := newStubWindow()
	w.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	before := w.TickFrame()
	w.Update(TickMsg{})
	assert.Equal(t, before+1, w.TickFrame())
}

func TestWindow_IntervalElapsed(t *testing.T) {
	w, _ := newStubWindow()
	for range 4 {
		w.Update(TickMsg{})
	}
	assert.True(t, w.IntervalElapsed(tickInterval))
	assert.True(t, w.IntervalElapsed(4*tickInterval))
	assert.False(t, w.IntervalElapsed(3*tickInterval))
}

func TestWindow_Quit(t *testing.T) {
	w, s := newStubWindow()
	_, cmd := w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, s.msgs, "quit is not forwarded")
}

func TestWindow_View(t *testing.T) {
	w, _ := newStubWindow()
	assert.Equal(t, "Starting...", w.View())

	w.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	w.SetFlash("reloaded")
	view := ansi.Strip(w.View())
	assert.Contains(t, view, "stub")
	assert.Contains(t, view, "~ reloaded")
	assert.Contains(t, view, "r reload")
	assert.Contains(t, view, "q quit")

	w.SetError(errors.New("connection refused"))
	assert.Contains(t, ansi.Strip(w.View()), "admin API error: connection refused")
}
