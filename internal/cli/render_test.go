package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Goals",
		Headers: []string{"Name", "Target"},
		Rows: [][]string{
			{"Laptop", "1,200.00"},
			{"Emergency fund", "5,000.00"},
		},
	})
	for _, want := range []string{"Goals", "Name", "Emergency fund", "5,000.00", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	// every bordered line has the same visible width
	var width int
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n")[1:] {
		w := lipgloss.Width(l)
		if width == 0 {
			width = w
		}
		if w != width {
			t.Fatalf("ragged table: %d vs %d in\n%s", w, width, out)
		}
	}
}

func TestRenderTableEmpty(t *testing.T) {
	if got := RenderTable(Table{}); got != "" {
		t.Fatalf("empty table rendered %q", got)
	}
}

func TestRenderCard(t *testing.T) {
	out := RenderCard("Budget", []Field{
		{Label: "Income", Value: "3,000.00"},
		{Label: "Remaining balance", Value: "-20.00", Tone: ToneBad},
	})
	for _, want := range []string{"Budget", "Income", "3,000.00", "Remaining balance", "-20.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("card missing %q:\n%s", want, out)
		}
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		percent, width, filled int
	}{
		{0, 10, 0},
		{50, 10, 5},
		{100, 10, 10},
		{150, 10, 10},
		{-5, 10, 0},
	}
	for _, tt := range tests {
		out := Bar(tt.percent, tt.width)
		if got := strings.Count(out, "█"); got != tt.filled {
			t.Errorf("Bar(%d, %d) filled %d cells, want %d", tt.percent, tt.width, got, tt.filled)
		}
		if got := lipgloss.Width(out); got != tt.width {
			t.Errorf("Bar(%d, %d) width %d", tt.percent, tt.width, got)
		}
	}
}
