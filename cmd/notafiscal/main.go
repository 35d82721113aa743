package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/notafiscal/internal/app"
	"github.com/nhle/notafiscal/internal/credential"
	"github.com/nhle/notafiscal/internal/extract"
	"github.com/nhle/notafiscal/internal/logger"
	"github.com/nhle/notafiscal/internal/mailbox"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/store"
)

var (
	configPath string // overridable via --config flag
	verbose    bool

	log *zap.SugaredLogger
)

func main() {
	root := &cobra.Command{
		Use:   "notafiscal",
		Short: "Find Brazilian invoices in your mailbox and extract their items",
		Long: `notafiscal scans an IMAP inbox for electronic invoices (NF-e XML and
DANFE PDF attachments), downloads them and extracts the purchased items.
XML notes are parsed directly; PDF notes are read by a local
OpenAI-compatible model server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.New(verbose)
			if err != nil {
				return err
			}
			log = l
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config.yaml (default: ~/.config/notafiscal/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(setupCmd())
	root.AddCommand(testConnectionCmd())
	root.AddCommand(listCmd())
	root.AddCommand(showCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(itemsCmd())
	root.AddCommand(historyCmd())

	err := root.Execute()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return model.DefaultConfigPath()
}

func loadConfig() (*model.AppConfig, error) {
	path := resolveConfigPath()
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.Debugw("config loaded", "path", path)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// interactive reports whether stdout and stdin are terminals.
func interactive() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

// appOptions select which dependencies newApp wires.
type appOptions struct {
	mailbox   bool
	extractor bool
}

// newApp loads the configuration and opens the store, plus the mailbox
// and extractor when requested. The returned close function releases the
// store.
func newApp(opts appOptions) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			log.Warnw("closing store failed", "error", err)
		}
	}

	var open app.Opener
	if opts.mailbox {
		client, err := mailboxClient(cfg)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		open = app.MailboxOpener(client)
	}

	var ex app.BatchExtractor
	if opts.extractor {
		llm := extract.NewLLM(cfg.LLM.URL, cfg.LLM.Model, extract.WithLogger(log))
		ex = extract.NewExtractor(llm, log)
	}

	return app.New(cfg, st, open, ex, log), closeFn, nil
}

func mailboxClient(cfg *model.AppConfig) (*mailbox.Client, error) {
	if cfg.IMAP.Address == "" {
		return nil, errNotConfigured
	}

	password := os.Getenv("NOTAFISCAL_IMAP_PASSWORD")
	if password == "" {
		var err error
		password, err = credential.Password(cfg.IMAP.Address)
		if errors.Is(err, credential.ErrNotFound) {
			return nil, errNotConfigured
		}
		if err != nil {
			return nil, err
		}
	}

	return mailbox.NewClient(mailbox.Config{
		Server:   cfg.IMAP.Server,
		Port:     cfg.IMAP.Port,
		Address:  cfg.IMAP.Address,
		Password: password,
	}, log), nil
}
