package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/nhle/notafiscal/internal/extract"
	"github.com/nhle/notafiscal/internal/jobs"
	"github.com/nhle/notafiscal/internal/mailbox"
	"github.com/nhle/notafiscal/internal/theme"
)

var errNotConfigured = errors.New("mailbox not configured")

func errorLine(err error) string {
	return theme.ErrorStyle.Render("error:") + " " + err.Error()
}

// hintFor returns remediation advice for the common failure causes.
func hintFor(err error) string {
	switch {
	case errors.Is(err, errNotConfigured):
		return "Run 'notafiscal setup' to configure your email address and app password."
	case mailbox.IsAuthError(err):
		return strings.Join([]string{
			"The server rejected the login. For Gmail:",
			"  1. Enable 2-Step Verification on your Google account.",
			"  2. Create an app password at https://myaccount.google.com/apppasswords.",
			"  3. Run 'notafiscal setup' and paste the 16-letter password.",
			"  4. Make sure IMAP is enabled in Gmail settings.",
		}, "\n")
	case mailbox.IsConnectionError(err):
		return "Check your network connection and the IMAP server and port in the configuration."
	case extract.IsServiceUnavailable(err):
		return "Start your local model server (for example LM Studio's server on port 1234) and load the configured model."
	case errors.Is(err, jobs.ErrBusy):
		return "Wait for the running operation to finish."
	}
	return ""
}

// brl formats v as Brazilian currency, e.g. 1234.5 -> "R$ 1.234,50".
func brl(v float64) string {
	return "R$ " + humanize.FormatFloat("#.###,##", v)
}

// number formats a quantity with a decimal comma and no trailing zeros.
func number(v float64) string {
	s := humanize.FormatFloat("#.###,###", v)
	if strings.Contains(s, ",") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ",")
	}
	return s
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// writeOutput writes v to path as JSON or YAML, chosen by the extension.
func writeOutput(path string, v any) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(v)
	case ".json", "":
		data, err = json.MarshalIndent(v, "", "  ")
	default:
		return fmt.Errorf("unsupported output format %q (use .json or .yaml)", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
