// Package store selects the persistence backend for links, scan logs and
// target records.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/store/memory"
	"github.com/BBbrighton/qr-suite/internal/store/postgres"
	"github.com/BBbrighton/qr-suite/internal/store/sqlite"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Backend is a link store that also owns the target records links point to.
type Backend interface {
	core.Store
	core.Targets

	// PutRecord inserts or replaces a target record and its readable fields.
	PutRecord(ctx context.Context, targetType, name string, fields map[string]string) error

	// Close releases the underlying connection.
	Close() error
}

// Options selects and addresses a backend.
type Options struct {
	Driver      string
	Path        string // sqlite file, ":memory:" allowed
	DatabaseURL string // postgres DSN
}

// Open returns the backend named by opts.Driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		s, err := sqlite.Open(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case DriverPostgres, "postgresql", "pgx":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		s, err := postgres.Connect(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", opts.Driver)
	}
}
