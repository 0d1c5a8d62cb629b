package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <sql> [args...]",
	Short: "Run a write statement and commit it",
	Long: `Runs an INSERT, UPDATE, DELETE or DDL statement in its own
transaction. Extra arguments bind to the statement placeholders.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, a *app) error {
			n, err := a.sess.Exec(ctx, args[0], stringArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) affected\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
}
