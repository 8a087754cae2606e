package server

import (
	"context"
	"fmt"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/storage/factory"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

func init() {
	factory.RegisterBackend(types.StorageMySQL2, func(ctx context.Context, cfg *config.Config, groupID types.GroupId, ym types.YearMonth, opts factory.Options) (storage.Backend, error) {
		if opts.Pools == nil || opts.Pools.Tool == nil {
			return nil, fmt.Errorf("server backend: no tool database pool configured")
		}
		return Open(cfg, opts.Pools.Tool.DB, groupID, ym, opts.Log), nil
	})
}
