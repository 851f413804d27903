package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// Theme colors
var (
	ColorCyan      = lipgloss.Color("#00d4ff")
	ColorPurple    = lipgloss.Color("#8b5cf6")
	ColorOrange    = lipgloss.Color("#f97316")
	ColorField     = lipgloss.Color("#0099cc")
	ColorError     = ColorPurple
	ColorHighlight = lipgloss.Color("#1e2d3d")
)

const (
	wordmark = "NOVPN"
	tagline  = "no tunnels past this gate"
)

// letterGlyph holds the three rows of a block-art character.
type letterGlyph struct {
	Top string
	Mid string
	Bot string
}

var glyphs = map[rune]letterGlyph{
	'N': {
		Top: `█▄  █`,
		Mid: `█ ▀▄█`,
		Bot: `█   █`,
	},
	'O': {
		Top: `▄▀▀▄`,
		Mid: `█  █`,
		Bot: `▀▄▄▀`,
	},
	'V': {
		Top: `█   █`,
		Mid: `▀▄ ▄▀`,
		Bot: ` ▀█▀ `,
	},
	'P': {
		Top: `█▀▀▄`,
		Mid: `█▄▄▀`,
		Bot: `█   `,
	},
}

// buildWordmark assembles the 3-row block text for word. Runes without a
// glyph are skipped.
func buildWordmark(word string) [3]string {
	var rows [3]string
	first := true
	for _, ch := range word {
		g, ok := glyphs[ch]
		if !ok {
			continue
		}
		sep := "  "
		if !first {
			sep = " "
		}
		first = false
		rows[0] += sep + g.Top
		rows[1] += sep + g.Mid
		rows[2] += sep + g.Bot
	}
	return rows
}

// applyGradient colors a string with a linear gradient from colorA to colorB.
func applyGradient(s string, colorA, colorB lipgloss.Color) string {
	runes := []rune(s)
	n := len(runes)
	if n == 0 {
		return s
	}

	aR, aG, aB, _ := colorA.RGBA()
	bR, bG, bB, _ := colorB.RGBA()

	var out strings.Builder
	for i, r := range runes {
		if r == ' ' {
			out.WriteRune(r)
			continue
		}
		t := float64(i) / float64(max(n-1, 1))
		cr := uint8(float64(aR>>8)*(1-t) + float64(bR>>8)*t)
		cg := uint8(float64(aG>>8)*(1-t) + float64(bG>>8)*t)
		cb := uint8(float64(aB>>8)*(1-t) + float64(bB>>8)*t)
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", cr, cg, cb)))
		out.WriteString(style.Render(string(r)))
	}
	return out.String()
}

// CompactHeaderThreshold is the terminal height below which the header
// collapses to a single line.
const CompactHeaderThreshold = 15

const defaultBannerWidth = 80

// HeaderInfo identifies the service a monitor is attached to.
type HeaderInfo struct {
	Admin   string
	Version string
}

func (info *HeaderInfo) text() string {
	if info == nil {
		return ""
	}
	if info.Version == "" {
		return info.Admin
	}
	return fmt.Sprintf("%s ╱╱ %s", info.Admin, info.Version)
}

var (
	fieldStyle   = lipgloss.NewStyle().Foreground(ColorField)
	taglineStyle = lipgloss.NewStyle().Foreground(ColorOrange).Italic(true)
)

// compactLine renders "╱╱╱ NOVPN  tagline ╱...╱ [info ]╱╱╱" padded to width.
func compactLine(info string, width int) string {
	fieldChar := fieldStyle.Render("╱")
	name := applyGradient(wordmark, ColorCyan, ColorPurple)
	tag := taglineStyle.Render(tagline)

	var right string
	if info != "" {
		right = " " + fieldStyle.Render(info)
	}
	fixed := 3 + 1 + ansi.StringWidth(wordmark) + 2 + ansi.StringWidth(tagline) + 1 + ansi.StringWidth(right) + 1 + 3
	fill := max(width-fixed, 1)

	return strings.Repeat(fieldChar, 3) + " " + name + "  " + tag + " " +
		strings.Repeat(fieldChar, fill) + right + " " + strings.Repeat(fieldChar, 3)
}

// fullLines renders the block-art wordmark followed by a tagline row that
// carries info on the right.
func fullLines(info string, width int) string {
	rows := buildWordmark(wordmark)
	wordmarkWidth := ansi.StringWidth(rows[0])

	fieldChar := fieldStyle.Render("╱")
	leftFieldCharLen := 3
	leftPadLen := leftFieldCharLen + 2

	var lines []string
	for i := range rows {
		coloredRow := applyGradient(rows[i], ColorCyan, ColorPurple)
		remaining := max(width-wordmarkWidth-leftPadLen, 0)
		lines = append(lines, strings.Repeat(fieldChar, leftFieldCharLen)+coloredRow+"  "+strings.Repeat(fieldChar, remaining))
	}

	tag := taglineStyle.Render(strings.ToUpper(tagline))
	last := strings.Repeat(" ", leftPadLen) + tag
	if info != "" {
		styled := fieldStyle.Render(info)
		gap := max(width-leftPadLen-ansi.StringWidth(tag)-ansi.StringWidth(styled), 2)
		last += strings.Repeat(" ", gap) + styled
	}
	lines = append(lines, last)

	return strings.Join(lines, "\n")
}

// PrintHeader prints the banner to stdout when it is a terminal, sized to
// fit. Nothing is printed when output is redirected.
func PrintHeader() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	width, height, err := term.GetSize(fd)
	width, height = normalizeBannerSize(width, height, err)
	writeBanner(os.Stdout, width, height)
}

func writeBanner(w io.Writer, width, height int) {
	fmt.Fprintln(w, RenderBanner(width, height))
	fmt.Fprintln(w)
}

func normalizeBannerSize(width int, height int, err error) (int, int) {
	if err != nil || width <= 0 {
		width = defaultBannerWidth
	}
	if err != nil || height <= 0 {
		height = 0
	}
	return width, height
}

// RenderBanner produces the branding-only header. It uses the compact layout
// when height < CompactHeaderThreshold.
func RenderBanner(width, height int) string {
	return RenderHeader(nil, width, height)
}

// RenderHeader produces the monitor header with wordmark, tagline and the
// service address.
func RenderHeader(info *HeaderInfo, width int, height int) string {
	width = max(width, 40)
	if height > 0 && height < CompactHeaderThreshold {
		return compactLine(info.text(), width)
	}
	return fullLines(info.text(), width)
}
