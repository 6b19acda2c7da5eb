package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the spreadsheet once and report what was loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureEngine(); err != nil {
				return err
			}

			start := time.Now()
			res, err := ctx.store.Refresh(cmd.Context())
			if err != nil {
				return userError(err)
			}
			info := ctx.store.Info()

			if jsonOut {
				return writeJSON(cmd, info)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Records", "Fetched", "Duration"},
				[][]string{{
					string(res.Status),
					fmt.Sprint(len(res.Records)),
					res.FetchedAt.Format(time.RFC3339),
					time.Since(start).Round(time.Millisecond).String(),
				}},
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print cache info as JSON")
	return cmd
}
