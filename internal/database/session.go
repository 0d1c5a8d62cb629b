package database

import (
	"context"
	"sync"

	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/logger"
)

// Session is a single logical connection to one data source.
// It carries an opaque owner value that is handed back to every Select
// callback. Methods are safe for concurrent use; they serialize.
type Session struct {
	mgr *Manager
	log *logger.Logger

	mu        sync.Mutex
	owner     any
	handle    *Handle
	connected bool
}

// NewSession returns a disconnected session bound to mgr.
func NewSession(mgr *Manager, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{mgr: mgr, log: log.Component("session")}
}

// Connect opens the named data source with the given credentials.
// owner is recorded even if the connect fails. A connected session is
// disconnected first.
func (s *Session) Connect(ctx context.Context, dsn, user, password string, owner any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		_ = s.disconnectLocked()
	}
	s.owner = owner

	log := s.log.With().Str("source", dsn).Logger()
	log.Debug("connecting")

	h, err := s.mgr.Acquire(ctx, dsn, user, password)
	if err != nil {
		log.WarnWith("connect failed", err, map[string]interface{}{"kind": errs.KindOf(err).String()})
		return err
	}

	s.handle = h
	s.connected = true
	log.InfoWith("connected", map[string]interface{}{"driver": h.driver.Name()})
	return nil
}

// Disconnect releases the connection if there is one and resets the session
// to its initial state. It is safe to call on a disconnected session.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

func (s *Session) disconnectLocked() error {
	var err error
	if s.connected {
		err = s.mgr.Release(s.handle)
		if err != nil {
			s.log.WarnWith("release failed", err, map[string]interface{}{"source": s.handle.source.Name})
		} else {
			s.log.DebugWith("disconnected", map[string]interface{}{"source": s.handle.source.Name})
		}
	} else {
		s.log.Debug("disconnect on a session that is not connected")
	}

	s.owner = nil
	s.handle = nil
	s.connected = false
	return err
}

// Connected reports whether the session holds an open connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Owner returns the value passed to Connect.
func (s *Session) Owner() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Source returns the name of the connected data source, or "" when disconnected.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ""
	}
	return s.handle.source.Name
}

// Dialect returns the SQL dialect of the connected engine.
func (s *Session) Dialect() (Dialect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return DialectANSI, errNotConnected()
	}
	return s.handle.driver.Dialect(), nil
}

// Ping verifies the connection is still alive.
func (s *Session) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errNotConnected()
	}
	if err := s.handle.db.PingContext(ctx); err != nil {
		return mapError(s.handle.driver, err, "ping failed")
	}
	return nil
}

// Exec runs a statement that produces no result set (INSERT, UPDATE, DELETE,
// DDL) inside its own transaction, committing on success.
// It returns the number of rows affected, or 0 when the engine cannot report it.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, errNotConnected()
	}

	h := s.handle
	log := s.log.With().Str("source", h.source.Name).Logger()

	ctx, cancel := context.WithTimeout(ctx, s.mgr.cfg.QueryTimeout)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		e := mapError(h.driver, err, "failed to begin transaction")
		log.WarnWith("exec failed", e, nil)
		return 0, e
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		e := mapError(h.driver, err, "statement failed")
		log.WarnWith("exec failed", e, nil)
		return 0, e
	}

	if err := tx.Commit(); err != nil {
		e := mapError(h.driver, err, "commit failed")
		log.WarnWith("exec failed", e, nil)
		return 0, e
	}

	n, err := res.RowsAffected()
	if err != nil {
		n = 0
	}
	log.DebugWith("exec ok", map[string]interface{}{"rows_affected": n})
	return n, nil
}
