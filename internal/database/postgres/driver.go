// Package postgres registers the "postgres" engine, backed by pgx v5 through
// its database/sql adapter.
package postgres

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" with database/sql
	"github.com/koustreak/sqlbridge/internal/database"
)

const (
	defaultHost    = "localhost"
	defaultPort    = "5432"
	defaultSSLMode = "disable"
)

// Driver is the database.Driver for PostgreSQL servers.
type Driver struct{}

func init() {
	database.Register(Driver{})
}

func (Driver) Name() string              { return "postgres" }
func (Driver) SQLDriver() string         { return "pgx" }
func (Driver) Dialect() database.Dialect { return database.DialectPostgres }

// BuildDSN accepts a URL (postgres://host/db) or keyword/value
// (host=... dbname=...) connection string. When the connection is empty it is
// built from the host, port, database and sslmode options. Non-empty
// credentials are merged in, and the result is validated with pgx.ParseConfig.
func (Driver) BuildDSN(src database.Source, user, password string) (string, error) {
	conn := strings.TrimSpace(src.Connection)
	if conn == "" {
		conn = fromOptions(src.Options)
	}

	var dsn string
	if strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") {
		u, err := url.Parse(conn)
		if err != nil {
			return "", fmt.Errorf("parse postgres url for %q: %w", src.Name, err)
		}
		if user != "" || password != "" {
			name := user
			if name == "" && u.User != nil {
				name = u.User.Username()
			}
			if password == "" && u.User != nil {
				// keep the password the URL already carries
				password, _ = u.User.Password()
			}
			if password != "" {
				u.User = url.UserPassword(name, password)
			} else {
				u.User = url.User(name)
			}
		}
		dsn = u.String()
	} else {
		var sb strings.Builder
		sb.WriteString(conn)
		if user != "" {
			sb.WriteString(" user=" + quote(user))
		}
		if password != "" {
			sb.WriteString(" password=" + quote(password))
		}
		dsn = strings.TrimSpace(sb.String())
	}

	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("invalid postgres connection for %q: %w", src.Name, err)
	}
	return dsn, nil
}

// fromOptions builds a keyword/value connection string. Options other than
// host, port, database and sslmode are passed through as-is, sorted by key.
func fromOptions(opts map[string]string) string {
	get := func(key, def string) string {
		if v, ok := opts[key]; ok && v != "" {
			return v
		}
		return def
	}

	parts := []string{
		"host=" + quote(get("host", defaultHost)),
		"port=" + quote(get("port", defaultPort)),
	}
	if db := get("database", ""); db != "" {
		parts = append(parts, "dbname="+quote(db))
	}
	parts = append(parts, "sslmode="+quote(get("sslmode", defaultSSLMode)))

	extra := make([]string, 0, len(opts))
	for k := range opts {
		switch k {
		case "host", "port", "database", "sslmode":
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, k+"="+quote(opts[k]))
	}
	return strings.Join(parts, " ")
}

// quote renders a keyword/value connection string value.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
