package database

import (
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/stretchr/testify/require"
)

// mockDriver routes sources to go-sqlmock connections. The source
// connection string is the sqlmock DSN.
type mockDriver struct{}

func (mockDriver) Name() string      { return "mock" }
func (mockDriver) SQLDriver() string { return "sqlmock" }
func (mockDriver) Dialect() Dialect  { return DialectANSI }

func (mockDriver) BuildDSN(src Source, _, _ string) (string, error) {
	if src.Options["broken"] == "true" {
		return "", errs.New(errs.ErrKindUnknown, "broken source")
	}
	return src.Connection, nil
}

func (mockDriver) MapError(err error, msg string) *errs.Error {
	if strings.Contains(err.Error(), "refused") {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func init() {
	Register(mockDriver{})
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.QueryTimeout = time.Second
	return cfg
}

// newMock registers a sqlmock connection under a DSN unique to the test and
// returns a source pointing at it. With monitorPings, pings must be expected.
func newMock(t *testing.T, monitorPings bool) (Source, sqlmock.Sqlmock) {
	t.Helper()
	dsn := "mock_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.MonitorPingsOption(monitorPings))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Source{Name: "mocked", Driver: "mock", Connection: dsn}, mock
}
