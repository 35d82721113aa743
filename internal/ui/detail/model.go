// Package detail renders one email with its attachments, either as plain
// text or in a scrollable pager.
package detail

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/notafiscal/internal/keys"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/theme"
)

// Render formats email for display. The text body is shown unless html is
// set or the message has no text part.
func Render(email *model.FullEmail, html bool) string {
	var b strings.Builder

	labelStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(7)
	b.WriteString(theme.HeaderStyle.Render(email.Subject))
	b.WriteString("\n\n")
	for _, f := range [][2]string{{"From", email.Sender}, {"Date", email.Date}, {"UID", email.UID}} {
		b.WriteString(labelStyle.Render(f[0]+":") + f[1] + "\n")
	}

	if len(email.Attachments) > 0 {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Attachments"))
		b.WriteString("\n")
		for _, att := range email.Attachments {
			fmt.Fprintf(&b, "  %s  %s  %s\n",
				theme.KindStyle(model.KindFromFilename(att.Filename)).Render("•"),
				att.Filename,
				theme.DimmedStyle.Render(att.ContentType+", "+humanize.Bytes(uint64(att.Size))),
			)
		}
	}

	if ids := inlineIDs(email.InlineImages); len(ids) > 0 {
		b.WriteString(theme.DimmedStyle.Render("Inline images: " + strings.Join(ids, ", ")))
		b.WriteString("\n")
	}

	body := email.TextBody
	if html || strings.TrimSpace(body) == "" {
		body = email.HTMLBody
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String()
}

// inlineIDs lists the bare content IDs of the inline images; the map also
// holds a "cid:" alias for each.
func inlineIDs(images map[string]string) []string {
	var ids []string
	for id := range images {
		if !strings.HasPrefix(id, "cid:") {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Model is the email pager.
type Model struct {
	viewport viewport.Model
	keys     *keys.KeyMap
	ready    bool
	content  string
}

// New creates a pager over the rendered email.
func New(email *model.FullEmail, html bool, k *keys.KeyMap) Model {
	return Model{
		keys:    k,
		content: Render(email, html),
	}
}

// Init returns the initial command for the pager.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the pager.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-1)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 1
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the pager.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	footer := theme.HelpStyle.Render(fmt.Sprintf(
		"%3.f%%  ↑/↓ scroll  q quit", m.viewport.ScrollPercent()*100))
	return m.viewport.View() + "\n" + footer
}

// Run pages email on out until the user quits.
func Run(email *model.FullEmail, html bool, out io.Writer) error {
	p := tea.NewProgram(New(email, html, keys.DefaultKeyMap()),
		tea.WithOutput(out), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
