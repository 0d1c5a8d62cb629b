package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/sqlbridge/internal/export"
	"github.com/koustreak/sqlbridge/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	serveAPIKey string
	serveExport bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the connected source over HTTP",
	Long: `Connects to the selected source and serves /healthz, /sources,
/tables/{table}, /exec and /query until interrupted. With --export the
gateway also accepts POST /export.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, func(ctx context.Context, a *app) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := server.Options{
				APIKey:    serveAPIKey,
				BatchSize: a.cfg.Database.BatchSize,
			}
			if opts.APIKey == "" {
				opts.APIKey = os.Getenv("SQLBRIDGE_API_KEY")
			}
			if serveExport {
				store, err := openStore(ctx, a.cfg.FilestoreSettings())
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Exporter = export.New(store, a.cfg.Export.Bucket, a.log)
			}

			addr := serveAddr
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(a.sess, a.mgr, opts, a.log)
			return srv.ListenAndServe(ctx, addr, a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "require this X-API-Key (default: $SQLBRIDGE_API_KEY)")
	serveCmd.Flags().BoolVar(&serveExport, "export", false, "enable POST /export")
	rootCmd.AddCommand(serveCmd)
}
