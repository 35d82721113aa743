package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/notafiscal/internal/credential"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/theme"
	configview "github.com/nhle/notafiscal/internal/ui/config"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure the mailbox account, model server and search keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			hasPassword := false
			if cfg.IMAP.Address != "" {
				_, err := credential.Password(cfg.IMAP.Address)
				hasPassword = err == nil
			}

			values := configview.FromConfig(cfg)
			if err := configview.NewForm(values, hasPassword).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Setup cancelled, nothing was saved.")
					return nil
				}
				return err
			}

			previous := cfg.IMAP.Address
			if err := values.Apply(cfg); err != nil {
				return err
			}

			if strings.TrimSpace(values.Password) != "" {
				if err := credential.SetPassword(cfg.IMAP.Address, values.Password); err != nil {
					return err
				}
				log.Infow("app password stored in keyring")
			} else if previous != "" && !strings.EqualFold(previous, cfg.IMAP.Address) {
				return fmt.Errorf("the address changed; enter the app password for %s", cfg.IMAP.Address)
			}

			path := resolveConfigPath()
			if err := model.SaveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Println(theme.SuccessStyle.Render("Saved") + " " + path)

			ctx, cancel := signalContext()
			defer cancel()
			return checkConnection(ctx)
		},
	}
}

// checkConnection logs in with the saved configuration and reports the
// INBOX size.
func checkConnection(ctx context.Context) error {
	a, closeFn, err := newApp(appOptions{mailbox: true})
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Printf("Connecting to %s...\n", a.Config().IMAP.HostPort())
	n, err := a.TestConnection(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d messages in INBOX\n", theme.SuccessStyle.Render("Connected."), n)
	return nil
}

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Log in to the mailbox and count the INBOX messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return checkConnection(ctx)
		},
	}
}
