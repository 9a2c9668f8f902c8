package editor

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucaspereyra/statq/internal/tui/theme"
)

// SubmitMsg is sent when the user triggers execution of the editor
// content. The app decides whether it is SQL or a console command.
type SubmitMsg struct {
	Input string
}

var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"insert": true, "into": true, "update": true, "delete": true,
	"create": true, "drop": true, "alter": true, "table": true,
	"index": true, "join": true, "inner": true, "outer": true,
	"left": true, "right": true, "cross": true, "on": true,
	"not": true, "in": true, "is": true, "null": true, "like": true,
	"order": true, "by": true, "group": true, "having": true,
	"limit": true, "offset": true, "as": true, "distinct": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"between": true, "exists": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "values": true,
	"set": true, "union": true, "all": true, "asc": true, "desc": true,
	"primary": true, "key": true, "foreign": true, "references": true,
	"default": true, "true": true, "false": true, "ilike": true,
	"returning": true,
}

// Model is the SQL input component.
type Model struct {
	textarea textarea.Model
	width    int
	height   int
	focused  bool
}

// New creates a new editor model.
func New() Model {
	ta := textarea.New()
	ta.Placeholder = "SQL, or \\d <table> for column metadata..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.Prompt = "│ "
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle()
	ta.BlurredStyle.Base = lipgloss.NewStyle()
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(theme.ColorMuted)
	ta.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(theme.ColorMuted)
	ta.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(theme.ColorPrimary)
	ta.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(theme.ColorBorder)

	return Model{textarea: ta}
}

// SetSize updates the component dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.textarea.SetWidth(w - 2)
	m.textarea.SetHeight(h - 2)
}

// SetFocused sets the focus state.
func (m *Model) SetFocused(f bool) {
	m.focused = f
	if f {
		m.textarea.Focus()
	} else {
		m.textarea.Blur()
	}
}

// Focused returns whether the editor has focus.
func (m Model) Focused() bool {
	return m.focused
}

// Value returns the current editor content.
func (m Model) Value() string {
	return m.textarea.Value()
}

// SetValue replaces the editor content.
func (m *Model) SetValue(s string) {
	m.textarea.SetValue(s)
}

// Clear empties the editor.
func (m *Model) Clear() {
	m.textarea.Reset()
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages for the editor.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+e", "f5":
			input := strings.TrimSpace(m.textarea.Value())
			if input != "" {
				return m, func() tea.Msg {
					return SubmitMsg{Input: input}
				}
			}
			return m, nil

		case "ctrl+k":
			m.Clear()
			return m, nil

		case "ctrl+l":
			m.formatKeywords()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// formatKeywords uppercases SQL keywords outside string literals.
func (m *Model) formatKeywords() {
	val := m.textarea.Value()
	if val == "" {
		return
	}

	var result strings.Builder
	var word strings.Builder
	inString := false
	quote := rune(0)

	for _, ch := range val {
		if (ch == '\'' || ch == '"') && !inString {
			inString = true
			quote = ch
			flushWord(&word, &result)
			result.WriteRune(ch)
			continue
		}
		if inString && ch == quote {
			inString = false
			result.WriteRune(ch)
			continue
		}
		if inString {
			result.WriteRune(ch)
			continue
		}

		if !unicode.IsLetter(ch) && ch != '_' {
			flushWord(&word, &result)
			result.WriteRune(ch)
		} else {
			word.WriteRune(ch)
		}
	}
	flushWord(&word, &result)

	m.textarea.SetValue(result.String())
}

func flushWord(word, result *strings.Builder) {
	if word.Len() == 0 {
		return
	}
	w := word.String()
	if sqlKeywords[strings.ToLower(w)] {
		result.WriteString(strings.ToUpper(w))
	} else {
		result.WriteString(w)
	}
	word.Reset()
}

// View renders the editor.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Foreground(theme.ColorPrimary).
		Bold(true).
		Padding(0, 1).
		Render("Query")

	return title + "\n" + m.textarea.View()
}
