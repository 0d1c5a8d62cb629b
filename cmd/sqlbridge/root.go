package main

import (
	"context"
	"os"

	"github.com/koustreak/sqlbridge/internal/config"
	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/logger"
	"github.com/spf13/cobra"
)

// global flags
var (
	cfgFile    string
	sourceName string
	user       string
	password   string
)

var rootCmd = &cobra.Command{
	Use:   "sqlbridge",
	Short: "Run SQL against configured data sources",
	Long: `sqlbridge connects to a named data source from its YAML config,
runs write statements and batched queries, exports result sets to
object storage and serves the same operations over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "path to the YAML config file")
	pf.StringVarP(&sourceName, "source", "s", "", "data source name (default: the only configured source)")
	pf.StringVarP(&user, "user", "u", "", "database user")
	pf.StringVarP(&password, "password", "p", "", "database password (default: $SQLBRIDGE_PASSWORD)")
}

// app is the runtime every command builds from the global flags.
type app struct {
	cfg  config.Config
	log  *logger.Logger
	mgr  *database.Manager
	sess *database.Session
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigFailed, "failed to load config", err)
	}

	lc := cfg.LoggerSettings()
	lc.Output = cmd.ErrOrStderr()
	log := logger.New(lc)

	mgr, err := database.NewManager(cfg.DatabaseSettings(), cfg.DataSources(), log)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:  cfg,
		log:  log,
		mgr:  mgr,
		sess: database.NewSession(mgr, log),
	}, nil
}

// connect opens the selected source. The command name is the session owner.
func (a *app) connect(ctx context.Context, owner string) error {
	name := sourceName
	if name == "" {
		srcs := a.mgr.Sources()
		if len(srcs) != 1 {
			return errs.New(errs.ErrKindInvalidInput, "--source is required when the config does not have exactly one source")
		}
		name = srcs[0].Name
	}

	pw := password
	if pw == "" {
		pw = os.Getenv("SQLBRIDGE_PASSWORD")
	}
	return a.sess.Connect(ctx, name, user, pw, owner)
}

func (a *app) close() {
	if err := a.sess.Disconnect(); err != nil {
		a.log.WarnWith("disconnect failed", err, nil)
	}
	if err := a.mgr.Close(); err != nil {
		a.log.WarnWith("closing pools failed", err, nil)
	}
}

// withSession runs fn on a connected session and tears it down afterwards.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.connect(ctx, cmd.Name()); err != nil {
		return err
	}
	return fn(ctx, a)
}

func stringArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
