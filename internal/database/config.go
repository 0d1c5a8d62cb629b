package database

import (
	"fmt"
	"time"
)

// Pooling controls whether sessions share connection pools.
type Pooling string

const (
	// PoolingOff gives every session its own pool.
	PoolingOff Pooling = "off"

	// PoolingOnePerDriver shares one pool per engine and connection string.
	// Sources that resolve to the same engine and DSN share a pool even when
	// their names differ.
	PoolingOnePerDriver Pooling = "one_per_driver"
)

// ParsePooling converts a config value into a Pooling mode. An empty string is PoolingOff.
func ParsePooling(s string) (Pooling, error) {
	switch Pooling(s) {
	case "", PoolingOff:
		return PoolingOff, nil
	case PoolingOnePerDriver:
		return PoolingOnePerDriver, nil
	}
	return "", fmt.Errorf("unknown pooling mode %q", s)
}

// MaxBatchSize bounds the rows per fetch step. Select clamps larger values.
const MaxBatchSize = 10000

// Config holds the settings the manager and its sessions apply to every source.
type Config struct {
	Pooling Pooling

	// Pool tuning
	MaxOpenConns    int           // maximum number of open connections per pool
	MaxIdleConns    int           // maximum number of idle connections per pool
	ConnMaxLifetime time.Duration // maximum time a connection may be reused
	ConnMaxIdleTime time.Duration // maximum time a connection may sit idle

	// Timeouts
	ConnectTimeout time.Duration // time limit for the ping that validates a new handle
	QueryTimeout   time.Duration // deadline applied to every Exec and Select

	// BatchSize is the number of rows per fetch step when a request leaves it
	// unset. Values above MaxBatchSize are clamped.
	BatchSize int
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() *Config {
	return &Config{
		Pooling:         PoolingOff,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    15 * time.Second,
		BatchSize:       1,
	}
}
