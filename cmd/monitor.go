package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bernd/novpn/blocklist"
	"github.com/bernd/novpn/proxy"
	"github.com/bernd/novpn/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
)

const (
	pollInterval    = time.Second
	maxMonitorItems = proxy.LogBufferCapacity
)

func MonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Follow gate decisions of the running service live",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			header := &tui.HeaderInfo{Admin: strings.TrimPrefix(strings.TrimPrefix(client.baseURL, "https://"), "http://")}
			if info, err := client.Info(); err == nil {
				header.Version = info.Version.Version
			}

			w := tui.NewWindow(header, newMonitorScreen(client))
			p := tea.NewProgram(w, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("monitor UI: %w", err)
			}
			return nil
		},
	}
}

// monitorClient is the part of ControlClient the monitor uses.
type monitorClient interface {
	LogsAfter(afterID uint64) ([]proxy.LogEntry, error)
	Reload(ctx context.Context) (*blocklist.RefreshOutcome, error)
}

type logsMsg struct {
	entries []proxy.LogEntry
	err     error
}

type reloadMsg struct {
	outcome *blocklist.RefreshOutcome
	err     error
}

// monitorScreen tails the decision log and follows the newest entry unless
// the cursor was moved away from it.
type monitorScreen struct {
	client     monitorClient
	cursor     tui.Cursor
	items      []proxy.LogEntry
	pollCursor uint64
	polling    bool
	reloading  bool
}

func newMonitorScreen(client monitorClient) *monitorScreen {
	return &monitorScreen{client: client}
}

func (s *monitorScreen) pollCmd() tea.Cmd {
	after := s.pollCursor
	return func() tea.Msg {
		entries, err := s.client.LogsAfter(after)
		return logsMsg{entries: entries, err: err}
	}
}

func (s *monitorScreen) reloadCmd() tea.Cmd {
	return func() tea.Msg {
		outcome, err := s.client.Reload(context.Background())
		return reloadMsg{outcome: outcome, err: err}
	}
}

func (s *monitorScreen) Update(msg tea.Msg, w *tui.Window) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.cursor.VpHeight = w.VpHeight()
		s.cursor.EnsureVisible()

	case tea.KeyMsg:
		if msg.String() == "r" {
			if s.reloading {
				return nil
			}
			s.reloading = true
			w.SetFlash("reloading...")
			return s.reloadCmd()
		}
		s.cursor.HandleKey(msg)

	case tui.TickMsg:
		if !s.polling && w.IntervalElapsed(pollInterval) {
			s.polling = true
			return s.pollCmd()
		}

	case logsMsg:
		s.polling = false
		w.SetError(msg.err)
		if msg.err == nil {
			s.append(msg.entries)
		}

	case reloadMsg:
		s.reloading = false
		if msg.err != nil {
			w.SetError(msg.err)
			return nil
		}
		w.SetError(nil)
		w.SetFlash(fmt.Sprintf("reloaded: %d IPs, %d ranges", msg.outcome.IPs, msg.outcome.Ranges))
	}
	return nil
}

func (s *monitorScreen) append(entries []proxy.LogEntry) {
	if len(entries) == 0 {
		return
	}
	s.items = append(s.items, entries...)
	s.pollCursor = entries[len(entries)-1].ID

	if over := len(s.items) - maxMonitorItems; over > 0 {
		s.items = s.items[over:]
		s.cursor.Pos = max(s.cursor.Pos-over, 0)
		s.cursor.Offset = max(s.cursor.Offset-over, 0)
		s.cursor.ItemCount = max(s.cursor.ItemCount-over, 0)
	}
	s.cursor.Grow(len(s.items))
}

func (s *monitorScreen) View(w *tui.Window) string {
	start, end := s.cursor.Visible()
	lines := make([]string, 0, w.VpHeight())
	for i := start; i < end; i++ {
		lines = append(lines, renderLogLine(s.items[i], i == s.cursor.Pos))
	}
	for len(lines) < w.VpHeight() {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (s *monitorScreen) FooterKeys(w *tui.Window) []tui.FooterKey {
	return append(s.cursor.FooterKeys(), tui.FooterKey{Key: "r", Desc: "reload"})
}

var trigrams = []string{"☱", "☲", "☴"}

// FooterStatus shows an animated trigram while following the tail and a
// pause icon otherwise.
func (s *monitorScreen) FooterStatus(w *tui.Window) string {
	if len(s.items) == 0 || s.cursor.AtEnd() {
		return lipgloss.NewStyle().Foreground(tui.ColorCyan).Render(trigrams[w.TickFrame()%len(trigrams)])
	}
	return lipgloss.NewStyle().Foreground(tui.ColorField).Render("⏸")
}

func renderLogLine(e proxy.LogEntry, highlighted bool) string {
	base := lipgloss.NewStyle()
	marker := "  "
	if highlighted {
		base = base.Background(tui.ColorHighlight)
		marker = lipgloss.NewStyle().Foreground(tui.ColorCyan).Background(tui.ColorHighlight).Render("▸") + base.Render(" ")
	}

	var symbol string
	var color lipgloss.Color
	switch e.Action {
	case proxy.ActionBlock:
		symbol, color = "x", tui.ColorError
	case proxy.ActionBypass:
		symbol, color = "~", tui.ColorOrange
	default:
		symbol, color = "+", tui.ColorCyan
	}

	sp := base.Render(" ")
	parts := []string{
		base.Render("[") + base.Foreground(tui.ColorField).Render(e.Time.Format("15:04:05")) + base.Render("]"),
		base.Foreground(color).Render(symbol),
		base.Foreground(color).Render(fmt.Sprintf("%-4s", string(e.Source))),
		base.Render(fmt.Sprintf("%-15s", e.Addr)),
	}
	if e.Reason != "" {
		parts = append(parts, base.Render(e.Reason))
	}
	if e.Conn != "" {
		parts = append(parts, base.Foreground(tui.ColorField).Render(e.Conn))
	}
	return marker + strings.Join(parts, sp)
}
