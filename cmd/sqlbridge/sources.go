package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured data sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDRIVER\tCONNECTION")
		for _, s := range a.mgr.Sources() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Driver, s.Connection)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nengines: %s\n", strings.Join(database.Drivers(), ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
