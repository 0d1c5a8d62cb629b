package main

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/sqlbridge/internal/export"
	"github.com/koustreak/sqlbridge/internal/filestore"
	"github.com/koustreak/sqlbridge/internal/filestore/minio"
	"github.com/spf13/cobra"
)

var (
	exportBucket    string
	exportKey       string
	exportBatchSize int
	exportPresign   time.Duration
)

// openStore is swapped in tests.
var openStore = func(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	return minio.New(ctx, cfg)
}

var exportCmd = &cobra.Command{
	Use:   "export <sql> [args...]",
	Short: "Export a query result to object storage as NDJSON",
	Long: `Runs a SELECT and streams its rows into an object in the configured
export bucket, one JSON document per line. Nothing is uploaded when the
query returns no rows.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, a *app) error {
			store, err := openStore(ctx, a.cfg.FilestoreSettings())
			if err != nil {
				return err
			}
			defer store.Close()

			key := exportKey
			if key == "" {
				key = fmt.Sprintf("%s/%s.ndjson", a.sess.Source(), time.Now().UTC().Format("20060102T150405Z"))
			}

			res, err := export.New(store, a.cfg.Export.Bucket, a.log).Run(ctx, a.sess, export.Job{
				Query:      args[0],
				Args:       stringArgs(args[1:]),
				Bucket:     exportBucket,
				Key:        key,
				BatchSize:  exportBatchSize,
				PresignTTL: exportPresign,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "exported %d row(s) to %s/%s\n", res.Written, res.Object.Bucket, res.Object.Key)
			if res.Summary.Rejected > 0 {
				fmt.Fprintf(out, "skipped %d row(s) that could not be read\n", res.Summary.Rejected)
			}
			if res.URL != "" {
				fmt.Fprintln(out, res.URL)
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportBucket, "bucket", "", "target bucket (default: export.bucket)")
	exportCmd.Flags().StringVar(&exportKey, "key", "", "object key (default: <source>/<timestamp>.ndjson)")
	exportCmd.Flags().IntVarP(&exportBatchSize, "batch-size", "b", 0, "rows per fetch (default: database.batch_size)")
	exportCmd.Flags().DurationVar(&exportPresign, "presign", 0, "also print a download URL valid for this long")
	rootCmd.AddCommand(exportCmd)
}
