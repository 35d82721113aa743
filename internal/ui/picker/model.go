// Package picker lets the user choose which found attachments to extract.
package picker

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize/english"

	"github.com/nhle/notafiscal/internal/keys"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/theme"
)

// ErrAborted is returned by Run when the user leaves without confirming.
var ErrAborted = errors.New("selection aborted")

// MatchItem wraps an attachment match so it can be used in a bubbles/list.
type MatchItem struct {
	Index int
	Match model.AttachmentMatch
}

// FilterValue returns the string used for fuzzy filtering.
func (i MatchItem) FilterValue() string {
	return i.Match.Filename + " " + i.Match.Subject
}

// ItemDelegate renders one match per line with its checkbox.
type ItemDelegate struct {
	// checked is shared by reference with the Model so toggles are visible.
	checked map[int]bool
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages.
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(MatchItem)
	if !ok {
		return
	}

	box := "[ ]"
	if d.checked[it.Index] {
		box = "[x]"
	}

	line := fmt.Sprintf("%s %s %s  %s",
		theme.CheckStyle(d.checked[it.Index]).Render(box),
		theme.KindStyle(it.Match.Kind).Render(string(it.Match.Kind)),
		it.Match.Filename,
		theme.DimmedStyle.Render(summaryLine(it.Match)),
	)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

func summaryLine(m model.AttachmentMatch) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{m.Subject, m.Sender, m.Date} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}

// Model is the attachment picker view.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	help    help.Model
	matches []model.AttachmentMatch
	checked map[int]bool

	confirmed bool
	aborted   bool
}

// New creates a picker over matches with every match checked.
func New(matches []model.AttachmentMatch, k *keys.KeyMap, width, height int) Model {
	checked := make(map[int]bool, len(matches))
	items := make([]list.Item, len(matches))
	for i, m := range matches {
		checked[i] = true
		items[i] = MatchItem{Index: i, Match: m}
	}

	l := list.New(items, ItemDelegate{checked: checked}, width, height-2)
	l.Title = "Select attachments to extract"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:    l,
		keys:    k,
		help:    help.New(),
		matches: matches,
		checked: checked,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd { return nil }

// Update handles messages for the picker view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Toggle):
			if it, ok := m.list.SelectedItem().(MatchItem); ok {
				m.checked[it.Index] = !m.checked[it.Index]
			}
			return m, nil
		case key.Matches(msg, m.keys.ToggleAll):
			all := len(m.Selected()) == len(m.matches)
			for i := range m.matches {
				m.checked[i] = !all
			}
			return m, nil
		case key.Matches(msg, m.keys.Confirm):
			m.confirmed = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Quit):
			m.aborted = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the picker.
func (m Model) View() string {
	if m.confirmed || m.aborted {
		return ""
	}
	n := len(m.Selected())
	footer := theme.HelpStyle.Render(english.Plural(n, "attachment", "") + " selected")
	return m.list.View() + "\n" + footer + "\n" + m.help.View(m.keys)
}

// Selected returns the checked matches in their original order.
func (m Model) Selected() []model.AttachmentMatch {
	var out []model.AttachmentMatch
	for i, match := range m.matches {
		if m.checked[i] {
			out = append(out, match)
		}
	}
	return out
}

// Run shows the picker on out and returns the confirmed selection.
func Run(matches []model.AttachmentMatch, out io.Writer) ([]model.AttachmentMatch, error) {
	p := tea.NewProgram(
		New(matches, keys.DefaultKeyMap(), 100, 20),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running picker: %w", err)
	}

	m, ok := final.(Model)
	if !ok || !m.confirmed {
		return nil, ErrAborted
	}
	return m.Selected(), nil
}
