// Package factory selects between the two concrete storage.Backend
// variants, grounded on the teacher's internal/storage/factory registry
// pattern (RegisterBackend/New/NewWithOptions), generalized from "dolt vs
// registered backend" to "sqlite file vs shared server".
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/dbpool"
	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// Options carries everything a backend constructor may need beyond the
// job identity itself.
type Options struct {
	Pools *dbpool.Pools
	Log   *slog.Logger
}

// Constructor builds a Backend for one (group, year_month) job.
type Constructor func(ctx context.Context, cfg *config.Config, groupID types.GroupId, ym types.YearMonth, opts Options) (storage.Backend, error)

var registry = make(map[types.StorageKind]Constructor)

// RegisterBackend registers a constructor under kind. Called from each
// variant package's init, mirroring the teacher's init-time
// self-registration so callers never import a concrete variant package
// directly.
func RegisterBackend(kind types.StorageKind, ctor Constructor) {
	registry[kind] = ctor
}

// New builds the backend named by kind for the given job.
func New(ctx context.Context, kind types.StorageKind, cfg *config.Config, groupID types.GroupId, ym types.YearMonth, opts Options) (storage.Backend, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("storage/factory: unknown backend kind %q", kind)
	}
	return ctor(ctx, cfg, groupID, ym, opts)
}
