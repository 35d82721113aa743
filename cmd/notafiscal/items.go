package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nhle/notafiscal/internal/items"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/theme"
)

func itemsCmd() *cobra.Command {
	var (
		filter string
		output string
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Show the extracted items saved so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer closeFn()

			list, sum, err := a.Items(context.Background(), filter)
			if err != nil {
				return err
			}
			if output != "" {
				return writeOutput(output, itemsExport{Items: list, Summary: sum})
			}
			if sum.Count == 0 {
				fmt.Println("No items saved.")
				return nil
			}
			printItems(list)
			fmt.Printf("%d items, %s in total.\n", sum.Count, brl(sum.Total))
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only items whose description or document contains this text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the items to a .json or .yaml file ('-' for stdout)")

	cmd.AddCommand(reportCmd())
	cmd.AddCommand(clearItemsCmd())
	return cmd
}

var reportNames = []string{"by-document", "by-product", "top-value", "top-quantity", "stats"}

func reportCmd() *cobra.Command {
	var (
		n      int
		filter string
		output string
	)

	cmd := &cobra.Command{
		Use:       "report <by-document|by-product|top-value|top-quantity|stats>",
		Short:     "Summarize the saved items",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: reportNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer closeFn()

			list, _, err := a.Items(context.Background(), filter)
			if err != nil {
				return err
			}

			var report any
			switch args[0] {
			case "by-document":
				report = items.ByDocument(list)
			case "by-product":
				report = items.ByProduct(list)
			case "top-value":
				report = items.TopByValue(list, n)
			case "top-quantity":
				report = items.TopByQuantity(list, n)
			case "stats":
				report = items.ComputeStats(list)
			}

			if output != "" {
				return writeOutput(output, report)
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "top", "n", 10, "number of items in top-value and top-quantity")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only items whose description or document contains this text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a .json or .yaml file ('-' for stdout)")
	return cmd
}

func printReport(report any) {
	switch r := report.(type) {
	case []items.DocumentTotal:
		t := newTable("Document", "Items", "Total")
		for _, d := range r {
			t.Row(d.Document, strconv.Itoa(d.Count), brl(d.Total))
		}
		fmt.Println(t)

	case []items.ProductTotal:
		t := newTable("Product", "Qty", "Total", "Documents")
		for _, p := range r {
			t.Row(truncateText(p.Product, 50), number(p.Quantity), brl(p.Total), strconv.Itoa(p.Documents))
		}
		fmt.Println(t)

	case items.Stats:
		if r.Records == 0 {
			fmt.Println("No items saved.")
			return
		}
		t := newTable("", "")
		t.Row("Records", humanize.Comma(int64(r.Records)))
		t.Row("Unique products", humanize.Comma(int64(r.UniqueProducts)))
		t.Row("Documents", humanize.Comma(int64(r.UniqueDocuments)))
		t.Row("Total quantity", number(r.TotalQuantity))
		t.Row("Total value", brl(r.TotalValue))
		t.Row("Average quantity", number(r.AvgQuantity))
		t.Row("Average value", brl(r.AvgValue))
		t.Row("Most expensive", fmt.Sprintf("%s (%s)", truncateText(r.MostExpensive.Description, 40), brl(r.MostExpensive.TotalValue)))
		t.Row("Cheapest", fmt.Sprintf("%s (%s)", truncateText(r.Cheapest.Description, 40), brl(r.Cheapest.TotalValue)))
		fmt.Println(t)

	case []model.LineItem:
		printItems(r)
	}
}

func clearItemsCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !interactive() {
					return fmt.Errorf("refusing to clear items without --yes")
				}
				confirmed := false
				err := huh.NewConfirm().
					Title("Delete every saved item?").
					Affirmative("Delete").
					Negative("Keep").
					Value(&confirmed).
					Run()
				if err != nil || !confirmed {
					fmt.Println("Nothing deleted.")
					return nil
				}
			}

			a, closeFn, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := a.Store().ClearItems(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%s %d items.\n", theme.SuccessStyle.Render("Deleted"), n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches and extractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := a.Store().Runs(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("Nothing recorded yet.")
				return nil
			}

			t := newTable("When", "Kind", "Scanned", "Matched", "OK", "Skipped", "Failed", "Status")
			for _, r := range runs {
				status := theme.SuccessStyle.Render("done")
				switch {
				case r.Error != "":
					status = theme.ErrorStyle.Render(truncateText(r.Error, 40))
				case r.Cancelled:
					status = theme.WarningStyle.Render("stopped")
				}
				t.Row(
					humanize.Time(r.StartedAt),
					string(r.Kind),
					strconv.Itoa(r.Scanned),
					strconv.Itoa(r.Matched),
					strconv.Itoa(r.Succeeded),
					strconv.Itoa(r.Skipped),
					strconv.Itoa(r.Failed),
					status,
				)
			}
			fmt.Println(t)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
