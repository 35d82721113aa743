package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/notafiscal/internal/app"
	"github.com/nhle/notafiscal/internal/jobs"
	"github.com/nhle/notafiscal/internal/mailbox"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/notes"
	"github.com/nhle/notafiscal/internal/theme"
	"github.com/nhle/notafiscal/internal/ui/progress"
)

func searchCmd() *cobra.Command {
	var (
		limit   int
		types   string
		include string
		exclude string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Scan recent messages for invoice attachments",
		Long: fmt.Sprintf(`Scans the most recent messages (at most %d), newest first, for PDF
and XML attachments that look like invoices. A message matches when its
subject or sender contains an include keyword and no exclude keyword; an
attachment also matches on its filename. The result is saved for
'notafiscal extract'. Press Ctrl+C to stop early and keep what was found.`,
			mailbox.MaxScan),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := app.SearchRequest{Limit: limit}
			if cmd.Flags().Changed("types") {
				kinds, err := notes.ParseKinds(types)
				if err != nil {
					return err
				}
				req.Kinds = kinds
			}
			if cmd.Flags().Changed("include") {
				req.Include = notes.SplitKeywords(include)
			}
			if cmd.Flags().Changed("exclude") {
				req.Exclude = notes.SplitKeywords(exclude)
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, closeFn, err := newApp(appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer closeFn()

			job, err := a.StartSearch(ctx, req)
			if err != nil {
				return err
			}
			res, err := waitForJob(job, "Searching notes")
			if err != nil {
				return err
			}
			if res.Err != nil {
				return res.Err
			}

			out, _ := res.Value.(*app.SearchOutcome)
			if out == nil {
				return nil
			}
			printMatches(out.Matches)

			summary := fmt.Sprintf("%d attachments in %d messages scanned (%s).",
				len(out.Matches), out.Scanned, progress.Elapsed(res))
			if out.Cancelled {
				summary = theme.WarningStyle.Render("Stopped early.") + " " + summary
			}
			fmt.Println(summary)
			if len(out.Matches) > 0 {
				fmt.Println(theme.HelpStyle.Render("Run 'notafiscal extract' to extract their items."))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "messages to scan (default from config)")
	cmd.Flags().StringVarP(&types, "types", "t", "pdf,xml", "attachment types to keep")
	cmd.Flags().StringVar(&include, "include", "", "comma-separated include keywords (default from config)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "comma-separated exclude keywords (default from config)")
	return cmd
}

// waitForJob shows a progress bar on a terminal; otherwise progress is
// logged.
func waitForJob(job *jobs.Job, title string) (jobs.ResultMsg, error) {
	if interactive() {
		return progress.Run(job, title, os.Stderr)
	}
	return progress.Drain(job, func(p jobs.ProgressMsg) {
		log.Debugw(title, "done", p.Done, "total", p.Total, "item", p.Label)
	}), nil
}

func printMatches(matches []model.AttachmentMatch) {
	if len(matches) == 0 {
		fmt.Println("No invoice attachments found.")
		return
	}

	t := newTable("UID", "Type", "File", "Subject", "From", "Date")
	for _, m := range matches {
		t.Row(
			m.UID,
			theme.KindStyle(m.Kind).Render(string(m.Kind)),
			truncateText(m.Filename, 40),
			truncateText(m.Subject, 40),
			truncateText(m.Sender, 30),
			truncateText(m.Date, 31),
		)
	}
	fmt.Println(t)
}
