package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/spf13/cobra"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var filters map[string]string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Search materials by keywords and filters",
		Example: `  materialctl search leyes de newton
  materialctl search --filter Tipo=Ejercicio --filter "Nivel=1° Medio"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			q := core.Query{
				Keywords: strings.Join(args, " "),
				Filters:  filters,
			}
			res, err := engine.SearchResult(cmd.Context(), q)
			if err != nil {
				return userError(err)
			}

			records := res.Records
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"items":     records,
					"total":     len(res.Records),
					"status":    res.Status,
					"fetchedAt": res.FetchedAt,
				})
			}

			out := cmd.OutOrStdout()
			if len(res.Records) == 0 {
				fmt.Fprintln(out, "No materials found.")
				return nil
			}

			headers, rows := recordTable(records, engine.Fields())
			fmt.Fprintln(out, renderTable(headers, rows, nil))
			fmt.Fprintf(out, "%d of %d materials (%s, fetched %s)\n",
				len(records), len(res.Records), res.Status, res.FetchedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringToStringVarP(&filters, "filter", "f", nil, "Filter as Label=Value (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to print (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}

// recordTable lays records out as title, then each enabled filter column.
func recordTable(records []core.Record, fields []core.FilterField) ([]string, [][]string) {
	enabled := core.EnabledFields(fields)
	headers := make([]string, 0, len(enabled)+1)
	headers = append(headers, "Título")
	for _, f := range enabled {
		headers = append(headers, f.Label)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, 0, len(headers))
		row = append(row, rec.Get("titulo"))
		for _, f := range enabled {
			row = append(row, rec.Get(f.Field))
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// userError replaces a technical error with its user message and code.
func userError(err error) error {
	if msg := core.FormatUserError(err); msg != "" {
		return errors.New(msg)
	}
	return err
}
