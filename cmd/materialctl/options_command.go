package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/spf13/cobra"
)

func newOptionsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the selectable values of every filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			options, err := engine.Options(cmd.Context())
			if err != nil {
				return userError(err)
			}
			if jsonOut {
				return writeJSON(cmd, options)
			}

			labels := make(map[core.FieldKey]string)
			for _, f := range engine.Fields() {
				labels[f.Field] = f.Label
			}
			keys := make([]string, 0, len(options))
			for key := range options {
				keys = append(keys, string(key))
			}
			sort.Strings(keys)

			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				values := options[core.FieldKey(key)]
				label := labels[core.FieldKey(key)]
				if label == "" {
					label = key
				}
				rows = append(rows, []string{label, strconv.Itoa(len(values)), strings.Join(values, ", ")})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Filter", "Count", "Values"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print options as JSON")
	return cmd
}
