package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/spf13/cobra"
)

var (
	queryBatchSize int
	queryJSON      bool

	previewLimit   int
	previewOffset  int
	previewColumns []string
	previewOrder   string
	previewDesc    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <sql> [args...]",
	Short: "Run a SELECT and print its rows",
	Long: `Runs a SELECT and prints the rows as they are fetched, batch by
batch. Use --json for newline-delimited JSON instead of a table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, a *app) error {
			return printQuery(ctx, cmd.OutOrStdout(), a, args[0], stringArgs(args[1:]), queryBatchSize, queryJSON)
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <table>",
	Short: "Print the first rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, a *app) error {
			dialect, err := a.sess.Dialect()
			if err != nil {
				return err
			}

			tq := database.From(args[0], dialect).Limit(previewLimit)
			if previewOffset > 0 {
				tq.Offset(previewOffset)
			}
			if len(previewColumns) > 0 {
				tq.Columns(previewColumns...)
			}
			if previewOrder != "" {
				dir := database.Asc
				if previewDesc {
					dir = database.Desc
				}
				tq.OrderBy(previewOrder, dir)
			}

			query, qargs, err := tq.Build()
			if err != nil {
				return err
			}
			return printQuery(ctx, cmd.OutOrStdout(), a, query, qargs, queryBatchSize, queryJSON)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, previewCmd} {
		c.Flags().IntVarP(&queryBatchSize, "batch-size", "b", 0, "rows per fetch (default: database.batch_size)")
		c.Flags().BoolVar(&queryJSON, "json", false, "print newline-delimited JSON")
	}
	previewCmd.Flags().IntVarP(&previewLimit, "limit", "n", 20, "maximum rows")
	previewCmd.Flags().IntVar(&previewOffset, "offset", 0, "rows to skip")
	previewCmd.Flags().StringSliceVar(&previewColumns, "columns", nil, "columns to select (default: all)")
	previewCmd.Flags().StringVar(&previewOrder, "order", "", "column to order by")
	previewCmd.Flags().BoolVar(&previewDesc, "desc", false, "order descending")

	rootCmd.AddCommand(queryCmd, previewCmd)
}

func printQuery(ctx context.Context, w io.Writer, a *app, query string, args []any, batchSize int, asJSON bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	enc := json.NewEncoder(w)
	var writeErr error

	sum, err := database.Select(ctx, a.sess, database.Request[database.Row]{
		Query:     query,
		Args:      args,
		BatchSize: batchSize,
		Bind: func(owner any, cols []database.Column) (database.ScanFunc[database.Row], error) {
			if !asJSON {
				names := make([]string, len(cols))
				for i, c := range cols {
					names[i] = strings.ToUpper(c.Name)
				}
				fmt.Fprintln(tw, strings.Join(names, "\t"))
			}
			return database.BindRows()(owner, cols)
		},
		Handle: func(_ any, b *database.Batch[database.Row], _ int) bool {
			if writeErr != nil {
				return false
			}
			for i := 0; i < b.Fetched; i++ {
				if b.Status[i] != database.RowSuccess {
					continue
				}
				if asJSON {
					writeErr = enc.Encode(b.Records[i].Map())
				} else {
					_, writeErr = fmt.Fprintln(tw, formatRow(b.Records[i]))
				}
				if writeErr != nil {
					return false
				}
			}
			return true
		},
	})
	if !asJSON {
		if ferr := tw.Flush(); ferr != nil && writeErr == nil {
			writeErr = ferr
		}
	}
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	a.log.DebugWith("query printed", map[string]interface{}{"batches": sum.Batches, "rows": sum.Rows})
	if sum.Rejected > 0 {
		a.log.WarnWith("rows skipped", nil, map[string]interface{}{"rejected": sum.Rejected})
	}
	return nil
}

func formatRow(r database.Row) string {
	cells := make([]string, len(r.Values))
	for i, v := range r.Values {
		switch x := v.(type) {
		case nil:
			cells[i] = "NULL"
		case []byte:
			cells[i] = string(x)
		default:
			cells[i] = fmt.Sprint(x)
		}
	}
	return strings.Join(cells, "\t")
}
