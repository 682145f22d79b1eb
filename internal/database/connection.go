// Package database opens and configures the PostgreSQL connection
// pool used by store/postgres.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/taskgraph/scheduler/internal/logger"
	"go.uber.org/zap"
)

// Connect opens a *sql.DB against dbURL, configures the pool, and
// pings once so callers find out immediately whether the database is
// reachable rather than on the first query.
func Connect(dbURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithComponent("database").Info("connected to PostgreSQL", zap.String("dsn_host", hostOnly(dbURL)))
	return conn, nil
}

// hostOnly avoids logging credentials embedded in the DSN.
func hostOnly(dbURL string) string {
	for i := len(dbURL) - 1; i >= 0; i-- {
		if dbURL[i] == '@' {
			return dbURL[i+1:]
		}
	}
	return "unknown"
}
