package store

import (
	"fmt"
	"strings"
)

// Config selects and configures the run-history backend.
type Config struct {
	Type             string // "sqlite" or "postgres"
	ConnectionString string
}

// New builds a Store from Config, defaulting to an on-disk SQLite file the
// way the teacher's db.NewStore defaults to .recac.db.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		if cfg.ConnectionString == "" {
			return nil, fmt.Errorf("postgres connection string is required")
		}
		return NewPostgresStore(cfg.ConnectionString)
	case "sqlite", "sqlite3", "":
		dsn := cfg.ConnectionString
		if dsn == "" {
			dsn = ".ralph.db"
		}
		return NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
