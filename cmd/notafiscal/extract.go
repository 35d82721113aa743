package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/notafiscal/internal/app"
	"github.com/nhle/notafiscal/internal/extract"
	"github.com/nhle/notafiscal/internal/items"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/theme"
	"github.com/nhle/notafiscal/internal/ui/picker"
)

// itemsExport is the document written by --output.
type itemsExport struct {
	Items   []model.LineItem `json:"itens" yaml:"itens"`
	Summary items.Summary    `json:"resumo" yaml:"resumo"`
}

func extractCmd() *cobra.Command {
	var (
		uids   []string
		all    bool
		dir    string
		output string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Download the found attachments and extract their items",
		Long: `Downloads the attachments found by the last search and extracts their
line items. When a message carries both the XML note and its DANFE PDF,
only the XML is used. On a terminal you pick the attachments unless
--all or --uid is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, closeFn, err := newApp(appOptions{mailbox: true, extractor: true})
			if err != nil {
				return err
			}
			defer closeFn()

			matches, err := a.SelectMatches(ctx, uids)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("No saved attachments match; run 'notafiscal search' first.")
				return nil
			}

			if !all && len(uids) == 0 && interactive() {
				matches, err = picker.Run(matches, os.Stderr)
				if errors.Is(err, picker.ErrAborted) || (err == nil && len(matches) == 0) {
					fmt.Println("Nothing selected.")
					return nil
				}
				if err != nil {
					return err
				}
			}

			if dir == "" {
				dir = a.Config().Storage.StagingDir
			}
			job, err := a.StartExtract(ctx, matches, dir)
			if err != nil {
				return err
			}
			res, err := waitForJob(job, "Extracting items")
			if err != nil {
				return err
			}
			if res.Err != nil {
				return res.Err
			}

			out, _ := res.Value.(*app.ExtractOutcome)
			if out == nil {
				return nil
			}
			printExtraction(out, res.Cancelled)

			if output != "" {
				export := itemsExport{Items: out.Batch.Items, Summary: items.Summarize(out.Batch.Items)}
				if export.Items == nil {
					export.Items = []model.LineItem{}
				}
				if err := writeOutput(output, export); err != nil {
					return err
				}
				if output != "-" {
					fmt.Println(theme.SuccessStyle.Render("Wrote") + " " + output)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&uids, "uid", nil, "only extract attachments of these message UIDs")
	cmd.Flags().BoolVar(&all, "all", false, "extract every saved attachment without asking")
	cmd.Flags().StringVar(&dir, "dir", "", "download directory (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the items to a .json or .yaml file ('-' for stdout)")
	return cmd
}

func printExtraction(out *app.ExtractOutcome, cancelled bool) {
	b := out.Batch
	printItems(b.Items)

	fmt.Printf("%d items from %d of %d documents, %s in total.\n",
		len(b.Items), b.Succeeded, b.Total, brl(items.Summarize(b.Items).Total))
	if b.Duplicates > 0 {
		fmt.Printf("%d duplicate items ignored.\n", b.Duplicates)
	}
	fmt.Printf("%d new items saved.\n", out.Added)
	if out.Dir != "" && len(out.Downloaded) > 0 {
		fmt.Println(theme.DimmedStyle.Render("Files kept in " + out.Dir))
	}

	if cancelled || b.Cancelled {
		fmt.Println(theme.WarningStyle.Render("Stopped early; the remaining documents were not processed."))
	}
	for _, name := range b.Skipped {
		fmt.Println(theme.WarningStyle.Render("skipped:") + " " + name +
			" (no text layer, possibly a scanned image)")
	}

	unavailable := false
	for _, f := range b.Failures {
		fmt.Println(theme.ErrorStyle.Render("failed:") + " " + f.Error())
		if extract.IsServiceUnavailable(f) {
			unavailable = true
		}
	}
	if unavailable {
		fmt.Println(hintFor(&extract.ServiceUnavailableError{}))
	}
}

func printItems(list []model.LineItem) {
	if len(list) == 0 {
		return
	}
	t := newTable("Document", "Description", "Qty", "Unit", "Total")
	for _, it := range list {
		t.Row(
			truncateText(it.DocumentLabel, 30),
			truncateText(it.Description, 50),
			number(it.Quantity),
			brl(it.UnitValue),
			brl(it.TotalValue),
		)
	}
	fmt.Println(t)
}
