package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/logger"
)

// Manager resolves named data sources to open connection pools.
// It is safe for concurrent use by multiple goroutines.
type Manager struct {
	cfg     *Config
	sources map[string]Source
	log     *logger.Logger

	mu    sync.Mutex
	pools map[string]*pool
	seq   int
}

type pool struct {
	db   *sql.DB
	refs int
}

// Handle is one acquired reference to a pool.
// Hand it back with Manager.Release; the Handle must not be used afterwards.
type Handle struct {
	db       *sql.DB
	driver   Driver
	source   Source
	key      string
	pool     *pool
	released bool
}

// DB returns the underlying pool.
func (h *Handle) DB() *sql.DB { return h.db }

// Driver returns the engine driver the handle was opened with.
func (h *Handle) Driver() Driver { return h.driver }

// Source returns the data source the handle was opened for.
func (h *Handle) Source() Source { return h.source }

// NewManager validates sources and returns a Manager. A nil cfg uses DefaultConfig.
func NewManager(cfg *Config, sources []Source, log *logger.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	byName := make(map[string]Source, len(sources))
	for _, src := range sources {
		if src.Name == "" {
			return nil, errs.New(errs.ErrKindInvalidInput, "data source without a name")
		}
		if _, dup := byName[src.Name]; dup {
			return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("duplicate data source %q", src.Name))
		}
		byName[src.Name] = src
	}

	return &Manager{
		cfg:     cfg,
		sources: byName,
		log:     log.Component("manager"),
		pools:   make(map[string]*pool),
	}, nil
}

// Config returns the settings the manager was built with.
func (m *Manager) Config() *Config { return m.cfg }

// Sources returns the configured data sources sorted by name.
func (m *Manager) Sources() []Source {
	out := make([]Source, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Acquire opens (or, with PoolingOnePerDriver, reuses) a pool for the named
// source and verifies it with a ping bounded by ConnectTimeout.
func (m *Manager) Acquire(ctx context.Context, name, user, password string) (*Handle, error) {
	src, ok := m.sources[name]
	if !ok {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown data source %q", name))
	}

	drv, ok := lookupDriver(src.Driver)
	if !ok {
		return nil, errs.New(errs.ErrKindDriverUnavailable,
			fmt.Sprintf("no driver registered for engine %q", src.Driver))
	}

	dsn, err := drv.BuildDSN(src, user, password)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigFailed, "failed to build connection string", err)
	}

	shared := m.cfg.Pooling == PoolingOnePerDriver
	key := drv.Name() + "\x00" + dsn

	if shared {
		m.mu.Lock()
		if p, ok := m.pools[key]; ok {
			p.refs++
			m.mu.Unlock()
			m.log.DebugWith("reusing pool", map[string]interface{}{"source": name, "driver": drv.Name()})
			return &Handle{db: p.db, driver: drv, source: src, key: key, pool: p}, nil
		}
		m.mu.Unlock()
	}

	db, err := sql.Open(drv.SQLDriver(), dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigFailed, "failed to open connection pool", err)
	}
	db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(m.cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, mapError(drv, err, "ping failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if shared {
		// another goroutine may have opened the same pool while we pinged
		if p, ok := m.pools[key]; ok {
			p.refs++
			_ = db.Close()
			return &Handle{db: p.db, driver: drv, source: src, key: key, pool: p}, nil
		}
	} else {
		m.seq++
		key = fmt.Sprintf("#%d", m.seq)
	}
	p := &pool{db: db, refs: 1}
	m.pools[key] = p

	m.log.DebugWith("opened pool", map[string]interface{}{"source": name, "driver": drv.Name(), "shared": shared})
	return &Handle{db: db, driver: drv, source: src, key: key, pool: p}, nil
}

// Release returns h to the manager and closes its pool when no other handle
// references it. Releasing a handle twice is a no-op.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	m.mu.Lock()
	if h.released {
		m.mu.Unlock()
		return nil
	}
	h.released = true

	// a handle that outlived Close must not touch a pool reopened under its key
	p, ok := m.pools[h.key]
	if !ok || p != h.pool {
		m.mu.Unlock()
		return nil
	}
	p.refs--
	if p.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.pools, h.key)
	m.mu.Unlock()

	if err := p.db.Close(); err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "failed to close pool", err)
	}
	m.log.DebugWith("closed pool", map[string]interface{}{"source": h.source.Name})
	return nil
}

// OpenPools reports how many pools are currently open.
func (m *Manager) OpenPools() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}

// Close closes every pool still open, regardless of outstanding handles.
func (m *Manager) Close() error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*pool)
	m.mu.Unlock()

	var first error
	for _, p := range pools {
		if err := p.db.Close(); err != nil && first == nil {
			first = errs.Wrap(errs.ErrKindConnectionFailed, "failed to close pool", err)
		}
	}
	return first
}
