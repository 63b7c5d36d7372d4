package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Database holds the catalog connection pool.
type Database struct {
	*sql.DB
}

// New opens and pings a MariaDB pool. The catalog stores DATETIME columns, so the DSN
// is forced to parse times, in UTC.
func New(ctx context.Context, cfg MariaDbConfig) (*Database, error) {
	dsn, err := normaliseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MultiStatements {
		dsn.MultiStatements = true
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", err), db.Close())
	}
	return &Database{db}, nil
}

func normaliseDSN(raw string) (*mysql.Config, error) {
	dsn, err := mysql.ParseDSN(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	return dsn, nil
}
