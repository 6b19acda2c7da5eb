package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var sheetURLFlag string
	var filtersFlag string
	var verboseFlag bool

	ctx := newCommandContext(&sheetURLFlag, &filtersFlag, &verboseFlag)

	rootCmd := &cobra.Command{
		Use:           "materialctl",
		Short:         "Search the materials spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&sheetURLFlag, "sheet-url", "", "Published CSV URL (overrides SHEET_URL)")
	rootCmd.PersistentFlags().StringVar(&filtersFlag, "filters", "", "Filters TOML file (overrides FILTERS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log fetch details to stderr")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newOptionsCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))

	return rootCmd
}
