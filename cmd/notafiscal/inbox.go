package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/theme"
	"github.com/nhle/notafiscal/internal/ui/detail"
)

func listCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent INBOX messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, closeFn, err := newApp(appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer closeFn()

			// Rows are printed as they arrive; the list can take a while.
			msgs, err := a.ListRecent(ctx, limit, func(m model.MessageSummary) {
				fmt.Printf("%s  %s  %s\n",
					theme.DimmedStyle.Render(fmt.Sprintf("%6s", m.UID)),
					truncateText(m.Subject, 60),
					theme.DimmedStyle.Render(m.Sender+" | "+m.Date),
				)
			})
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("No messages.")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of messages to list")
	return cmd
}

func showCmd() *cobra.Command {
	var html bool

	cmd := &cobra.Command{
		Use:   "show <uid>",
		Short: "Show one message with its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, closeFn, err := newApp(appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer closeFn()

			email, err := a.Email(ctx, args[0])
			if err != nil {
				return err
			}

			if interactive() {
				return detail.Run(email, html, os.Stdout)
			}
			fmt.Print(detail.Render(email, html))
			return nil
		},
	}

	cmd.Flags().BoolVar(&html, "html", false, "show the HTML body instead of the text body")
	return cmd
}
