// Command sqlbridge runs statements against configured data sources,
// exports query results to object storage and serves an HTTP gateway.
package main

import (
	"fmt"
	"os"

	_ "github.com/koustreak/sqlbridge/internal/database/mysql"
	_ "github.com/koustreak/sqlbridge/internal/database/postgres"
	_ "github.com/koustreak/sqlbridge/internal/database/sqlite"
	"github.com/koustreak/sqlbridge/internal/errs"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode turns the result code of err into a process exit code:
// 1 for a plain failure, 2 connect failed, 3 bad connection settings,
// 4 no driver for the engine.
func exitCode(err error) int {
	switch st := errs.Status(err); st {
	case errs.StatusOK:
		return 0
	case errs.StatusFailed:
		return 1
	default:
		return 1 - st
	}
}
