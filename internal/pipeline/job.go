// Package pipeline implements the Job Pipeline (spec §4.5): the explicit
// state machine that turns one (group, year_month) into a sealed view-count
// snapshot. Each step is a method on Job so it can be exercised in
// isolation; Run drives the full sequence and folds any step error into a
// FAILED status on the control-plane group_status row.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magnusmanske/baglama2-go/internal/pageviews"
	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// fileNamespace is the MediaWiki namespace id for File: pages, the
// namespace a category-based group always scans (spec §4.5 step 2).
const fileNamespace = 6

// minFilesWarnThreshold is the file-count below which file discovery logs
// a warning rather than failing outright (spec §4.5 step 2: "warn if <5
// files").
const minFilesWarnThreshold = 5

// Gateway is the subset of *gateway.Gateway the pipeline depends on,
// narrowed to an interface so a job can be driven against a fake in tests
// without a real database.
type Gateway interface {
	GetGroup(ctx context.Context, id types.GroupId) (types.Group, error)
	GetSites(ctx context.Context) ([]types.Site, error)
	GetFilesFromUser(ctx context.Context, name string) ([]types.FileName, error)
	GetPagesInCategory(ctx context.Context, cat string, depth int, ns int) ([]string, error)
	GetEmbeddingsForFiles(ctx context.Context, files []types.FileName) ([]types.Embedding, error)
	SetGroupStatus(ctx context.Context, id types.GroupId, ym types.YearMonth, status types.Status, totalViews *uint64, storageKind types.StorageKind, path string) error
}

// Resolver is the subset of *namespace.Resolver the pipeline depends on.
type Resolver interface {
	PrefixWithNamespace(ctx context.Context, title string, namespaceID int, wiki string) (string, bool)
}

// PageViewsClient is the subset of *pageviews.Client the pipeline depends
// on.
type PageViewsClient interface {
	Fetch(ctx context.Context, reqs []pageviews.Request) ([]pageviews.Result, error)
}

// pather is implemented by storage.Backend variants that publish to a
// filesystem path (the sqlite variant); the server variant has none.
type pather interface {
	Path() string
}

// Job drives one (group, year_month) through the full pipeline. One
// instance per run; not reused across runs.
type Job struct {
	GroupID types.GroupId
	YM      types.YearMonth
	Storage types.StorageKind

	Backend         storage.Backend
	Gateway         Gateway
	Resolver        Resolver
	PageViewsClient PageViewsClient
	Config          Config
	Log             *slog.Logger

	group types.Group
}

// Config carries the batch-size tunables the pipeline steps use (spec §6
// configuration, §9 REDESIGN FLAGS: "hardcoded batch sizes should become
// configuration").
type Config struct {
	BatchPageDiscoveryWindow   int
	BatchPageDiscoverySubBatch int
	BatchViewResolution        int
}

// Run drives the job from Initialize through Finalize. Any step error
// flips the control-plane group_status to FAILED and is returned to the
// caller; the scheduler never dies on a job failure (spec §4.5, §7).
func (j *Job) Run(ctx context.Context) error {
	if j.Log == nil {
		j.Log = slog.Default()
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"initialize", j.initialize},
		{"discover_files", j.discoverFiles},
		{"discover_pages", j.discoverPages},
		{"resolve_views", j.resolveViews},
		{"summary", j.summary},
		{"finalize", j.finalize},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			j.Log.Error("pipeline step failed", "group_id", j.GroupID, "ym", j.YM, "step", step.name, "error", err)
			if setErr := j.Gateway.SetGroupStatus(ctx, j.GroupID, j.YM, types.StatusFailed, nil, j.Storage, ""); setErr != nil {
				j.Log.Error("failed to record FAILED status", "group_id", j.GroupID, "ym", j.YM, "error", setErr)
			}
			return fmt.Errorf("pipeline %s: %w", step.name, err)
		}
	}
	return nil
}

// initialize prepares the destination for a fresh run (spec §4.5 step 1).
// The control-plane group_status row is already marked GENERATING PAGE
// LIST by the scheduler's claim step before this job was ever built, so
// that the claim and the mark happen atomically with respect to the
// scheduler's own loop; this step only has to seed the backend.
func (j *Job) initialize(ctx context.Context) error {
	group, err := j.Gateway.GetGroup(ctx, j.GroupID)
	if err != nil {
		return err
	}
	j.group = group

	return j.Backend.Initialize(ctx)
}

// discoverFiles enumerates the group's member files and stages them (spec
// §4.5 step 2).
func (j *Job) discoverFiles(ctx context.Context) error {
	var files []string
	if j.group.IsUserName {
		uploaded, err := j.Gateway.GetFilesFromUser(ctx, j.group.UploaderName())
		if err != nil {
			return err
		}
		files = make([]string, len(uploaded))
		for i, f := range uploaded {
			files[i] = string(f)
		}
	} else {
		var err error
		files, err = j.Gateway.GetPagesInCategory(ctx, j.group.Category, j.group.Depth, fileNamespace)
		if err != nil {
			return err
		}
	}

	if len(files) < minFilesWarnThreshold {
		j.Log.Warn("group has very few files", "group_id", j.GroupID, "count", len(files))
	}

	return j.Backend.InsertFiles(ctx, files)
}

// discoverPages walks the staged files in windows, resolving each file's
// embeddings on every sister wiki into view rows linked back to the file
// (spec §4.5 step 3).
func (j *Job) discoverPages(ctx context.Context) error {
	sites, err := j.Gateway.GetSites(ctx)
	if err != nil {
		return err
	}
	sitesByWiki := make(map[string]types.Site, len(sites))
	for _, s := range sites {
		sitesByWiki[s.WikiID()] = s
	}

	window := j.Config.BatchPageDiscoveryWindow
	subBatch := j.Config.BatchPageDiscoverySubBatch

	offset := 0
	for {
		batch, err := j.Backend.LoadFilesBatch(ctx, offset, window)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		files := make([]types.FileName, len(batch))
		for i, f := range batch {
			files[i] = types.FileName(f)
		}
		for start := 0; start < len(files); start += subBatch {
			end := start + subBatch
			if end > len(files) {
				end = len(files)
			}
			if err := j.discoverPagesSubBatch(ctx, files[start:end], sitesByWiki); err != nil {
				return err
			}
		}

		offset += len(batch)
		if len(batch) < window {
			break
		}
	}

	return j.Gateway.SetGroupStatus(ctx, j.GroupID, j.YM, types.StatusScanned, nil, j.Storage, "")
}

func (j *Job) discoverPagesSubBatch(ctx context.Context, files []types.FileName, sitesByWiki map[string]types.Site) error {
	embeddings, err := j.Gateway.GetEmbeddingsForFiles(ctx, files)
	if err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return nil
	}

	keys := make([]storage.ViewKey, 0, len(embeddings))
	fileByKey := make(map[storage.ViewKey]string, len(embeddings))
	for _, e := range embeddings {
		site, ok := sitesByWiki[e.Wiki]
		if !ok {
			continue // unknown wikis are silently skipped (spec §4.5 step 3)
		}
		key := storage.ViewKey{SiteID: site.ID, Title: e.PageTitle, NamespaceID: e.PageNamespaceID, PageID: e.PageID}
		keys = append(keys, key)
		fileByKey[key] = string(e.FileName)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := j.Backend.CreateViewsInDB(ctx, keys); err != nil {
		return err
	}
	viewIDs, err := j.Backend.GetViewIDSiteIDTitle(ctx, keys)
	if err != nil {
		return err
	}

	viewIDToFile := make(map[uint64]string, len(viewIDs))
	for key, viewID := range viewIDs {
		viewIDToFile[viewID] = fileByKey[key]
	}
	return j.Backend.InsertGroup2View(ctx, viewIDToFile)
}

// resolveViews hides the Main Page, then repeatedly fetches unresolved
// view rows and resolves them via the Namespace Resolver and PageViews
// Client until a pass yields nothing left to do (spec §4.5 step 4).
func (j *Job) resolveViews(ctx context.Context) error {
	if err := j.Backend.ResetMainPageViewCount(ctx); err != nil {
		return err
	}

	sites, err := j.Gateway.GetSites(ctx)
	if err != nil {
		return err
	}
	sitesByID := make(map[uint64]types.Site, len(sites))
	for _, s := range sites {
		sitesByID[s.ID] = s
	}

	for {
		todo, err := j.Backend.GetViewCountsTodo(ctx, j.Config.BatchViewResolution)
		if err != nil {
			return err
		}
		if len(todo) == 0 {
			return nil
		}

		reqs, err := j.buildPageViewRequests(ctx, todo, sitesByID)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			continue
		}

		results, err := j.PageViewsClient.Fetch(ctx, reqs)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := j.Backend.UpdateViewCount(ctx, r.ViewID, r.Views); err != nil {
				return err
			}
		}
	}
}

// buildPageViewRequests classifies each todo row per spec §4.5 step 4:
// missing server -> done=2; site unresolvable -> done=3; namespace
// resolution failure -> done=4; otherwise queue a PageViews request.
func (j *Job) buildPageViewRequests(ctx context.Context, todo []storage.ViewCount, sitesByID map[uint64]types.Site) ([]pageviews.Request, error) {
	reqs := make([]pageviews.Request, 0, len(todo))
	for _, vc := range todo {
		site, ok := sitesByID[vc.SiteID]
		if !ok {
			if err := j.Backend.ViewDone(ctx, vc.ViewID, storage.DoneUnknownWiki); err != nil {
				return nil, err
			}
			continue
		}
		if site.Server == "" {
			if err := j.Backend.ViewDone(ctx, vc.ViewID, storage.DoneNoServer); err != nil {
				return nil, err
			}
			continue
		}

		title, ok := j.Resolver.PrefixWithNamespace(ctx, vc.Title, vc.NamespaceID, site.WikiID())
		if !ok {
			if err := j.Backend.ViewDone(ctx, vc.ViewID, storage.DoneNamespaceUnknown); err != nil {
				return nil, err
			}
			continue
		}

		reqs = append(reqs, pageviews.Request{
			Server:   pageviews.FixServerForPV(site.Server),
			Title:    title,
			FirstDay: j.YM.FirstDay(),
			LastDay:  j.YM.LastDay(),
			ViewID:   vc.ViewID,
		})
	}
	return reqs, nil
}

// summary populates per-site aggregates and total_views (spec §4.5 step
// 5).
func (j *Job) summary(ctx context.Context) error {
	return j.Backend.AddSummaryStatistics(ctx)
}

// finalize builds read-optimized indices, publishes the artifact, and
// records the sealed status on the control-plane group_status row (spec
// §4.5 step 6).
func (j *Job) finalize(ctx context.Context) error {
	if err := j.Backend.CreateFinalIndices(ctx); err != nil {
		return err
	}
	if err := j.Backend.Finalize(ctx); err != nil {
		return err
	}

	total, err := j.Backend.GetTotalViews(ctx)
	if err != nil {
		return err
	}

	path := ""
	if p, ok := j.Backend.(pather); ok {
		path = p.Path()
	}
	return j.Gateway.SetGroupStatus(ctx, j.GroupID, j.YM, types.StatusViewDataComplete, &total, j.Storage, path)
}
