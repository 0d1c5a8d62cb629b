// Package mysql registers the "mysql" engine, backed by go-sql-driver/mysql.
package mysql

import (
	"fmt"
	"net"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlbridge/internal/database"
)

const (
	defaultHost = "localhost"
	defaultPort = "3306"
)

// Driver is the database.Driver for MySQL and MariaDB servers.
type Driver struct{}

func init() {
	database.Register(Driver{})
}

func (Driver) Name() string              { return "mysql" }
func (Driver) SQLDriver() string         { return "mysql" }
func (Driver) Dialect() database.Dialect { return database.DialectMySQL }

// BuildDSN parses the source connection as a go-sql-driver DSN
// (user:pass@tcp(host:port)/dbname?params). When the connection is empty the
// DSN is assembled from the host, port and database options; any other
// option becomes a connection parameter. Non-empty credentials replace the
// ones in the base DSN. parseTime is always enabled so DATETIME columns scan
// into time.Time.
func (Driver) BuildDSN(src database.Source, user, password string) (string, error) {
	var cfg *gomysql.Config
	if src.Connection != "" {
		parsed, err := gomysql.ParseDSN(src.Connection)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn for %q: %w", src.Name, err)
		}
		cfg = parsed
	} else {
		cfg = gomysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(option(src, "host", defaultHost), option(src, "port", defaultPort))
		cfg.DBName = src.Options["database"]
		for k, v := range src.Options {
			switch k {
			case "host", "port", "database":
				continue
			}
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[k] = v
		}
	}

	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}

func option(src database.Source, key, def string) string {
	if v, ok := src.Options[key]; ok && v != "" {
		return v
	}
	return def
}
