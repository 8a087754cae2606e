package sqlite

import (
	"context"
	"fmt"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/gateway"
	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/storage/factory"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

func init() {
	factory.RegisterBackend(types.StorageSQLite3, func(ctx context.Context, cfg *config.Config, groupID types.GroupId, ym types.YearMonth, opts factory.Options) (storage.Backend, error) {
		if opts.Pools == nil {
			return nil, fmt.Errorf("sqlite backend: no database pools configured")
		}
		gw := gateway.New(opts.Pools, *cfg, opts.Log)
		return Open(ctx, cfg, groupID, ym, gw, opts.Log)
	})
}
