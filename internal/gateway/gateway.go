// Package gateway is the Catalog Gateway (spec §4.1): pooled, read-mostly
// access to the central-repo replica (categorylinks, image,
// globalimagelinks, actor/user) and to the tool's own control DB (groups,
// group_status, sites). It hides retry/flakiness behind withRetry so
// callers in internal/pipeline see either success or the final error,
// never an individual failed attempt.
package gateway

import (
	"database/sql"
	"log/slog"
	"sync"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/dbpool"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// Gateway is the concrete Catalog Gateway. One instance is shared by
// every concurrently-running job; database/sql's pool is itself
// goroutine-safe, so no locking is needed around query issuance.
type Gateway struct {
	tool    *sql.DB
	commons *sql.DB
	cfg     config.Config
	log     *slog.Logger

	sitesOnce sync.Once
	sitesErr  error
	sites     []types.Site
}

// New builds a Gateway over already-opened pools.
func New(pools *dbpool.Pools, cfg config.Config, log *slog.Logger) *Gateway {
	return NewWithDBs(pools.Tool.DB, pools.Commons.DB, cfg, log)
}

// NewWithDBs builds a Gateway directly over existing *sql.DB handles,
// bypassing dbpool.Pools. Production code uses New; tests use this to
// wire in a sqlmock-backed *sql.DB.
func NewWithDBs(tool, commons *sql.DB, cfg config.Config, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		tool:    tool,
		commons: commons,
		cfg:     cfg,
		log:     log,
	}
}

// placeholders returns a comma-joined string of n "?" characters, used to
// build parameterized IN (...) clauses. Its length is always 2n-1 for
// n>=1 (spec §8 testable property).
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

func argsFor(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// chunk splits items into batches of at most size, used to stay under
// driver/parameter-count limits on IN (...) queries (spec §4.1).
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			size = 1
		}
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

