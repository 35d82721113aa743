// Package config is the interactive setup form for the mailbox account,
// the extraction service and the default search keywords.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/notes"
)

// Values holds the form fields as edited text.
type Values struct {
	Address  string
	Server   string
	Port     string
	Password string

	LLMURL   string
	LLMModel string

	Include string
	Exclude string
}

// FromConfig fills the form fields from cfg. The password is never loaded.
func FromConfig(cfg *model.AppConfig) *Values {
	return &Values{
		Address:  cfg.IMAP.Address,
		Server:   cfg.IMAP.Server,
		Port:     strconv.Itoa(cfg.IMAP.Port),
		LLMURL:   cfg.LLM.URL,
		LLMModel: cfg.LLM.Model,
		Include:  strings.Join(cfg.Search.IncludeKeywords, ", "),
		Exclude:  strings.Join(cfg.Search.ExcludeKeywords, ", "),
	}
}

// Apply copies the edited fields into cfg.
func (v *Values) Apply(cfg *model.AppConfig) error {
	port, err := strconv.Atoi(strings.TrimSpace(v.Port))
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", v.Port)
	}

	cfg.IMAP.Address = strings.TrimSpace(v.Address)
	cfg.IMAP.Server = strings.TrimSpace(v.Server)
	cfg.IMAP.Port = port
	cfg.LLM.URL = strings.TrimRight(strings.TrimSpace(v.LLMURL), "/")
	cfg.LLM.Model = strings.TrimSpace(v.LLMModel)
	cfg.Search.IncludeKeywords = notes.SplitKeywords(v.Include)
	cfg.Search.ExcludeKeywords = notes.SplitKeywords(v.Exclude)
	return nil
}

// NewForm builds the setup form bound to v. When hasPassword is set an
// empty password keeps the stored one.
func NewForm(v *Values, hasPassword bool) *huh.Form {
	passwordHelp := "Gmail app password (16 letters). Stored in the system keyring."
	validatePassword := validateRequired("App password")
	if hasPassword {
		passwordHelp = "Leave empty to keep the stored password."
		validatePassword = func(string) error { return nil }
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email address").
				Placeholder("voce@gmail.com").
				Value(&v.Address).
				Validate(validateAddress),
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.gmail.com").
				Value(&v.Server).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Placeholder("993").
				Value(&v.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("App password").
				Description(passwordHelp).
				EchoMode(huh.EchoModePassword).
				Value(&v.Password).
				Validate(validatePassword),
		).Title("Mailbox"),
		huh.NewGroup(
			huh.NewInput().
				Title("Model server URL").
				Description("OpenAI-compatible endpoint used for PDF notes").
				Placeholder("http://127.0.0.1:1234").
				Value(&v.LLMURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model").
				Value(&v.LLMModel).
				Validate(validateRequired("Model")),
		).Title("Extraction"),
		huh.NewGroup(
			huh.NewText().
				Title("Include keywords").
				Description("Comma-separated; a message or filename must contain one").
				Value(&v.Include),
			huh.NewText().
				Title("Exclude keywords").
				Description("Comma-separated; messages containing one are skipped").
				Value(&v.Exclude),
		).Title("Search"),
	)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateAddress(s string) error {
	s = strings.TrimSpace(s)
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return fmt.Errorf("enter a full email address")
	}
	return nil
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., http://127.0.0.1:1234)")
	}
	return nil
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}
