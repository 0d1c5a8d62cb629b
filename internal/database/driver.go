package database

import (
	"sort"
	"sync"

	"github.com/koustreak/sqlbridge/internal/errs"
)

// Driver adapts one database engine to the manager.
// Engine packages register their Driver from init, the way database/sql
// drivers register themselves.
type Driver interface {
	// Name is the engine name used by Source.Driver (e.g. "postgres").
	Name() string

	// SQLDriver is the database/sql driver name passed to sql.Open.
	SQLDriver() string

	// BuildDSN merges the source's base connection string with credentials.
	BuildDSN(src Source, user, password string) (string, error)

	// MapError translates a native engine error into *errs.Error.
	MapError(err error, msg string) *errs.Error

	// Dialect is the placeholder and quoting style of the engine.
	Dialect() Dialect
}

// Source is a named data source: which engine to use and where it lives.
// Credentials are not part of a Source; they are supplied on Connect.
type Source struct {
	Name       string
	Driver     string
	Connection string
	Options    map[string]string
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes an engine driver available by name.
// It panics if d is nil or a driver with the same name is already registered.
func Register(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("database: Register driver is nil")
	}
	if _, dup := drivers[d.Name()]; dup {
		panic("database: Register called twice for driver " + d.Name())
	}
	drivers[d.Name()] = d
}

// Drivers returns the sorted names of the registered engine drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}
