package db

import "time"

type MariaDbConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// MultiStatements is needed by migration files holding more than one statement.
	MultiStatements bool
	// PingTimeout bounds the connectivity check of New; 0 means 5s.
	PingTimeout time.Duration
}
