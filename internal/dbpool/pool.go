// Package dbpool exposes the two MySQL connection pools (tool DB, repo
// DB) as a small shared service, per the design note in spec §9:
// "Connection pools as shared infrastructure. Expose pools via a small
// service object; do not let pipeline code construct connections
// directly."
package dbpool

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/magnusmanske/baglama2-go/internal/config"
)

// Pool wraps a *sql.DB shaped by config.DBConfig.
type Pool struct {
	DB *sql.DB
}

// Open opens a MySQL connection pool shaped by cfg: min/max connections
// and idle eviction timeout, mirroring the teacher's per-backend pool
// configuration in internal/storage/dolt.
func Open(cfg config.DBConfig) (*Pool, error) {
	db, err := sql.Open("mysql", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dbpool: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MinConnections)
	db.SetConnMaxIdleTime(cfg.IdleTimeout())
	return &Pool{DB: db}, nil
}

// Ping verifies the pool can reach the database.
func (p *Pool) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

// Close releases all pooled connections.
func (p *Pool) Close() error {
	return p.DB.Close()
}

// Pools bundles the two pools the gateway needs.
type Pools struct {
	Tool    *Pool
	Commons *Pool
}

// OpenPools opens both the tool DB and repo (commons) DB pools from cfg.
func OpenPools(cfg *config.Config) (*Pools, error) {
	tool, err := Open(cfg.ToolDB)
	if err != nil {
		return nil, fmt.Errorf("dbpool: tool db: %w", err)
	}
	commons, err := Open(cfg.Commons)
	if err != nil {
		_ = tool.Close()
		return nil, fmt.Errorf("dbpool: commons db: %w", err)
	}
	return &Pools{Tool: tool, Commons: commons}, nil
}

// Close closes both pools, returning the first error encountered.
func (p *Pools) Close() error {
	errTool := p.Tool.Close()
	errCommons := p.Commons.Close()
	if errTool != nil {
		return errTool
	}
	return errCommons
}
