package results

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucaspereyra/statq/internal/tui/theme"
)

// Data is a fully materialized, display-ready result set with the
// execution status reported by the query layer.
type Data struct {
	Columns   []string
	Rows      [][]string
	Elapsed   time.Duration
	ErrorCode string
	ErrorMsg  string // empty on success
}

// Failed reports whether the execution failed.
func (d *Data) Failed() bool {
	return d.ErrorMsg != ""
}

// FormatValue renders a driver scalar for display.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Model is the query results component.
type Model struct {
	data      *Data
	width     int
	height    int
	focused   bool
	scrollY   int
	loading   bool
	colWidths []int
}

// New creates a new results model.
func New() Model {
	return Model{}
}

// SetSize updates the component dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused sets the focus state.
func (m *Model) SetFocused(f bool) {
	m.focused = f
}

// Focused returns whether the results pane has focus.
func (m Model) Focused() bool {
	return m.focused
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(l bool) {
	m.loading = l
}

// SetData sets the result data to display.
func (m *Model) SetData(d *Data) {
	m.data = d
	m.scrollY = 0
	m.loading = false
	m.calculateColumnWidths()
}

func (m *Model) calculateColumnWidths() {
	if m.data == nil || len(m.data.Columns) == 0 {
		m.colWidths = nil
		return
	}

	m.colWidths = make([]int, len(m.data.Columns))

	// Display width, not byte length
	for i, col := range m.data.Columns {
		m.colWidths[i] = lipgloss.Width(col)
	}

	for _, row := range m.data.Rows {
		for i, cell := range row {
			w := lipgloss.Width(cell)
			if i < len(m.colWidths) && w > m.colWidths[i] {
				m.colWidths[i] = w
			}
		}
	}

	for i := range m.colWidths {
		if m.colWidths[i] < 1 {
			m.colWidths[i] = 1
		}
		if m.colWidths[i] > 40 {
			m.colWidths[i] = 40
		}
	}
}

// Init returns the initial command (none).
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the results pane.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		maxScroll := 0
		if m.data != nil {
			maxScroll = len(m.data.Rows) - 1
		}

		switch key.String() {
		case "up", "k":
			if m.scrollY > 0 {
				m.scrollY--
			}
		case "down", "j":
			if m.scrollY < maxScroll {
				m.scrollY++
			}
		case "pgup":
			m.scrollY -= m.height / 2
			if m.scrollY < 0 {
				m.scrollY = 0
			}
		case "pgdown":
			m.scrollY += m.height / 2
			if m.scrollY > maxScroll {
				m.scrollY = maxScroll
			}
			if m.scrollY < 0 {
				m.scrollY = 0
			}
		}
	}

	return m, nil
}

// View renders the results pane.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Foreground(theme.ColorPrimary).
		Bold(true).
		Padding(0, 1)

	if m.loading {
		return titleStyle.Render("Results") + "\n" + theme.StyleMuted.Render("  Executing...")
	}

	if m.data == nil {
		return titleStyle.Render("Results") + "\n" +
			theme.StyleMuted.Render("  Execute a query to see results")
	}

	if m.data.Failed() {
		status := fmt.Sprintf("  [%s] %s", m.data.ErrorCode, m.data.ErrorMsg)
		return titleStyle.Render("Results") + "\n" + theme.StyleError.Render(status)
	}

	stats := fmt.Sprintf("%d row(s) | %s",
		len(m.data.Rows),
		m.data.Elapsed.Round(time.Microsecond).String(),
	)
	header := titleStyle.Render("Results") + "  " + theme.StyleMuted.Render(stats)

	if len(m.data.Columns) == 0 {
		return header + "\n" + theme.StyleSuccess.Render("  OK")
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	b.WriteString(m.renderRow(m.data.Columns, true))
	b.WriteString("\n")
	b.WriteString(m.renderSeparator())
	b.WriteString("\n")

	visibleRows := m.height - 4
	if visibleRows < 1 {
		visibleRows = 1
	}

	for i := m.scrollY; i < len(m.data.Rows) && i < m.scrollY+visibleRows; i++ {
		b.WriteString(m.renderRow(m.data.Rows[i], false))
		if i < m.scrollY+visibleRows-1 && i < len(m.data.Rows)-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m Model) renderRow(cells []string, isHeader bool) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		width := 10
		if i < len(m.colWidths) {
			width = m.colWidths[i]
		}
		if width < 1 {
			width = 1
		}

		display := truncate(cell, width)

		if pad := width - lipgloss.Width(display); pad > 0 {
			display += strings.Repeat(" ", pad)
		}

		if isHeader {
			parts[i] = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorPrimary).
				Render(display)
		} else {
			parts[i] = display
		}
	}
	return "  " + strings.Join(parts, " │ ")
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 1 {
		return "…"
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func (m Model) renderSeparator() string {
	parts := make([]string, len(m.colWidths))
	for i, w := range m.colWidths {
		if w < 1 {
			w = 1
		}
		parts[i] = strings.Repeat("─", w)
	}
	return "  " + lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Join(parts, "─┼─"))
}
