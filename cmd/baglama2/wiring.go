package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/dbpool"
	"github.com/magnusmanske/baglama2-go/internal/gateway"
	"github.com/magnusmanske/baglama2-go/internal/logging"
	"github.com/magnusmanske/baglama2-go/internal/maintenance"
	"github.com/magnusmanske/baglama2-go/internal/namespace"
	"github.com/magnusmanske/baglama2-go/internal/pageviews"
	"github.com/magnusmanske/baglama2-go/internal/pipeline"
	"github.com/magnusmanske/baglama2-go/internal/scheduler"
	"github.com/magnusmanske/baglama2-go/internal/storage/factory"
	"github.com/magnusmanske/baglama2-go/internal/types"

	// Blank-imported so each variant's init registers itself with
	// storage/factory; neither package is referenced by name elsewhere in
	// this command.
	_ "github.com/magnusmanske/baglama2-go/internal/storage/server"
	_ "github.com/magnusmanske/baglama2-go/internal/storage/sqlite"
)

// app bundles every long-lived dependency a CLI command needs, closed
// together via app.Close once the command returns.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	pools     *dbpool.Pools
	gw        *gateway.Gateway
	resolver  *namespace.Resolver
	pvClient  *pageviews.Client
	scheduler *scheduler.Scheduler
}

// newApp loads configuration and wires every component together the way
// spec §6 describes: one process-wide HTTP client, two connection pools,
// one Catalog Gateway, one Namespace Resolver, one PageViews Client, and
// a Scheduler whose JobFactory builds a fresh Job (and storage.Backend)
// per run.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("baglama2: %w", err)
	}

	log := logging.New(jsonLogs, debugLogs)
	logging.SetDefault(log)

	pools, err := dbpool.OpenPools(cfg)
	if err != nil {
		return nil, fmt.Errorf("baglama2: %w", err)
	}

	gw := gateway.New(pools, *cfg, log)
	httpClient := &http.Client{Timeout: 60 * time.Second}
	resolver := namespace.New(httpClient)
	pvClient := pageviews.New(httpClient, "baglama2-go/1.0 (pageview tracker)")
	maint := maintenance.New(gw, log)

	a := &app{cfg: cfg, log: log, pools: pools, gw: gw, resolver: resolver, pvClient: pvClient}

	a.scheduler = &scheduler.Scheduler{
		Gateway:           gw,
		Maintenance:       maint,
		NewJob:            a.newJob,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		Storage:           cfg.Storage,
		Log:               log,
	}
	return a, nil
}

// newJob builds one Job against a freshly-constructed storage.Backend
// for (groupID, ym), satisfying scheduler.JobFactory.
func (a *app) newJob(ctx context.Context, groupID types.GroupId, ym types.YearMonth) (scheduler.Runner, error) {
	backend, err := factory.New(ctx, a.cfg.Storage, a.cfg, groupID, ym, factory.Options{Pools: a.pools, Log: a.log})
	if err != nil {
		return nil, err
	}

	return &pipeline.Job{
		GroupID:         groupID,
		YM:              ym,
		Storage:         a.cfg.Storage,
		Backend:         backend,
		Gateway:         a.gw,
		Resolver:        a.resolver,
		PageViewsClient: a.pvClient,
		Config: pipeline.Config{
			BatchPageDiscoveryWindow:   a.cfg.BatchPageDiscoveryWindow,
			BatchPageDiscoverySubBatch: a.cfg.BatchPageDiscoverySubBatch,
			BatchViewResolution:        a.cfg.BatchViewResolution,
		},
		Log: a.log,
	}, nil
}

func (a *app) Close() error {
	return a.pools.Close()
}

// resolveYearMonth turns the CLI's year/month arguments into a
// types.YearMonth, honoring the "lm" ("last month") shorthand on either
// argument (spec §6: `"lm"` = "last month" of the wall clock).
func resolveYearMonth(yearArg, monthArg string) (types.YearMonth, error) {
	if yearArg == "lm" || monthArg == "lm" {
		return types.LastMonth(time.Now())
	}
	year, err := parseIntArg("year", yearArg)
	if err != nil {
		return types.YearMonth{}, err
	}
	month, err := parseIntArg("month", monthArg)
	if err != nil {
		return types.YearMonth{}, err
	}
	return types.NewYearMonth(year, month)
}

func parseIntArg(name, raw string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("baglama2: invalid %s %q", name, raw)
	}
	return v, nil
}
