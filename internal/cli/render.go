package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorBorder = lipgloss.Color("#3C3A36")
	ColorText   = lipgloss.Color("#FFFCF0")
	ColorMuted  = lipgloss.Color("#6F6E69")
	ColorAccent = lipgloss.Color("#3AA99F")
	ColorGreen  = lipgloss.Color("#879A39")
	ColorOrange = lipgloss.Color("#DA702C")
	ColorRed    = lipgloss.Color("#D14D41")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorText)
	goodStyle   = lipgloss.NewStyle().Foreground(ColorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorOrange)
	badStyle    = lipgloss.NewStyle().Foreground(ColorRed)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorBorder)
)

// Tone colours a value in cards and tables.
type Tone int

const (
	ToneNormal Tone = iota
	ToneGood
	ToneWarn
	ToneBad
)

func (t Tone) render(s string) string {
	switch t {
	case ToneGood:
		return goodStyle.Render(s)
	case ToneWarn:
		return warnStyle.Render(s)
	case ToneBad:
		return badStyle.Render(s)
	}
	return valueStyle.Render(s)
}

// Field is one label/value line of a card.
type Field struct {
	Label string
	Value string
	Tone  Tone
}

// Table is a bordered text table.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a title in a rounded box.
func RenderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 2).
		Render(titleStyle.Render(title))
}

// RenderCard renders aligned label/value pairs under a heading.
func RenderCard(heading string, fields []Field) string {
	width := 0
	for _, f := range fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(heading))
	b.WriteString("\n")
	for _, f := range fields {
		b.WriteString("  ")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width, f.Label)))
		b.WriteString("  ")
		b.WriteString(f.Tone.render(f.Value))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderTable renders t with box-drawing borders. Column widths fit the
// widest cell.
func RenderTable(t Table) string {
	cols := len(t.Headers)
	if cols == 0 && len(t.Rows) > 0 {
		cols = len(t.Rows[0])
	}
	if cols == 0 {
		return ""
	}
	widths := make([]int, cols)
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < cols && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(left, mid, right string) string {
		parts := make([]string, cols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return dimStyle.Render(left+strings.Join(parts, mid)+right) + "\n"
	}
	row := func(cells []string, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := widths[i] - lipgloss.Width(cell)
			b.WriteString(" " + style.Render(cell) + strings.Repeat(" ", pad) + " ")
			b.WriteString(dimStyle.Render("│"))
		}
		return b.String() + "\n"
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(headerStyle.Render(t.Title) + "\n")
	}
	b.WriteString(line("╭", "┬", "╮"))
	if len(t.Headers) > 0 {
		b.WriteString(row(t.Headers, headerStyle))
		b.WriteString(line("├", "┼", "┤"))
	}
	for _, r := range t.Rows {
		b.WriteString(row(r, valueStyle))
	}
	b.WriteString(line("╰", "┴", "╯"))
	return b.String()
}

// Bar draws a proportional bar of up to width cells for a 0-100 percentage.
func Bar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return goodStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
}

// Muted renders secondary text.
func Muted(s string) string { return labelStyle.Render(s) }

// Warn renders a warning line.
func Warn(s string) string { return warnStyle.Render(s) }
