// Package sqlite implements the file variant of the Storage Backend
// (spec §4.4): one job owns a private single-file sqlite database seeded
// with a snapshot of sites/groups/group_status, written to under a
// temporary name and copied into place on success.
//
// Grounded on original_source/src/db_sqlite.rs for the exact operation
// semantics; the connection/mutex shape follows the teacher's
// single-writer guard in internal/storage/dolt/store.go (withRetry +
// sync.Mutex around the one *sql.DB used for writes).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/gateway"
	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// fileInsertBatchSize is the file variant's parameter ceiling: sqlite's
// own limit is 500 bound parameters per statement, 450 leaves headroom
// for statements with a fixed prefix (spec §4.4).
const fileInsertBatchSize = 450

// Backend is the sqlite file variant. One instance per (group, ym) job;
// all writes go through a single connection guarded by mu, since sqlite
// permits only one writer at a time.
type Backend struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger

	pathTmp   string
	pathFinal string

	groupID        types.GroupId
	ym             types.YearMonth
	cachedStatusID uint64

	gw  *gateway.Gateway
	cfg *config.Config
}

// Open creates (or reuses) the job's temporary sqlite file and opens a
// connection to it. Callers must call Initialize before using the
// backend, and Close when done.
func Open(ctx context.Context, cfg *config.Config, groupID types.GroupId, ym types.YearMonth, gw *gateway.Gateway, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}

	pathFinal, err := finalPath(cfg, groupID, ym)
	if err != nil {
		return nil, fmt.Errorf("sqlite: final path: %w", err)
	}
	pathTmp := tmpPath(groupID, ym)

	if _, err := os.Stat(pathFinal); err == nil {
		if _, err := os.Stat(pathTmp); err != nil {
			pathTmp = pathFinal
		}
	}
	if pathTmp != pathFinal {
		_ = os.Remove(pathTmp)
	}

	db, err := sql.Open("sqlite3", pathTmp)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", pathTmp, err)
	}
	db.SetMaxOpenConns(1)

	return &Backend{
		db:        db,
		log:       log,
		pathTmp:   pathTmp,
		pathFinal: pathFinal,
		groupID:   groupID,
		ym:        ym,
		gw:        gw,
		cfg:       cfg,
	}, nil
}

func tmpPath(groupID types.GroupId, ym types.YearMonth) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s.%d.sqlite3", ym.String(), groupID.Uint64()))
}

func finalPath(cfg *config.Config, groupID types.GroupId, ym types.YearMonth) (string, error) {
	if cfg.SqliteDataRootPath == "" {
		return "", fmt.Errorf("sqlite_data_root_path not configured")
	}
	dir := filepath.Join(cfg.SqliteDataRootPath, ym.PartitionSuffix())
	return filepath.Join(dir, fmt.Sprintf("%d.sqlite", groupID.Uint64())), nil
}

// Close releases the sqlite connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Path returns the artifact's final published path (spec §4.4 finalize
// note), valid even before Finalize runs.
func (b *Backend) Path() string { return b.pathFinal }

func (b *Backend) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.ExecContext(ctx, query, args...)
}

// Initialize loads the schema file, clears any staged files left over
// from a prior attempt, seeds sites/groups/group_status from the Catalog
// Gateway, then clears the status/total_views/path columns for a fresh
// run (spec §4.4, original_source/src/db_sqlite.rs
// `initialize`/`group_status`).
func (b *Backend) Initialize(ctx context.Context) error {
	schema, err := os.ReadFile(b.cfg.SqliteSchemaFile)
	if err != nil {
		return fmt.Errorf("sqlite: read schema file: %w", err)
	}
	b.mu.Lock()
	_, err = b.db.ExecContext(ctx, string(schema))
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	if _, err := b.exec(ctx, "DELETE FROM `files`"); err != nil {
		return fmt.Errorf("sqlite: clear staged files: %w", err)
	}

	if err := b.seedSites(ctx); err != nil {
		return err
	}
	if err := b.seedGroup(ctx); err != nil {
		return err
	}
	if err := b.seedGroupStatus(ctx); err != nil {
		return err
	}

	_, err = b.exec(ctx, "UPDATE `group_status` SET `status`='',`total_views`=NULL,`file`=NULL,`sqlite3`=NULL")
	return err
}

func (b *Backend) seedSites(ctx context.Context) error {
	sites, err := b.gw.GetSites(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: load sites: %w", err)
	}
	if _, err := b.exec(ctx, "DELETE FROM `sites`"); err != nil {
		return err
	}
	for _, s := range sites {
		_, err := b.exec(ctx,
			"INSERT INTO `sites` (id,grok_code,server,giu_code,project,language,name) VALUES (?,?,?,?,?,?,?)",
			s.ID, s.GrokCode, s.Server, s.GiuCode, s.Project, s.Language, s.Name)
		if err != nil {
			return fmt.Errorf("sqlite: seed site %d: %w", s.ID, err)
		}
	}
	return nil
}

func (b *Backend) seedGroup(ctx context.Context) error {
	group, err := b.gw.GetGroup(ctx, b.groupID)
	if err != nil {
		return fmt.Errorf("sqlite: load group: %w", err)
	}
	if _, err := b.exec(ctx, "DELETE FROM `groups`"); err != nil {
		return err
	}
	_, err = b.exec(ctx,
		"INSERT INTO `groups` (id,category,depth,added_by) VALUES (?,?,?,?)",
		group.ID.Uint64(), group.Category, group.Depth, group.AddedBy)
	return err
}

func (b *Backend) seedGroupStatus(ctx context.Context) error {
	if _, err := b.exec(ctx, "DELETE FROM `group_status`"); err != nil {
		return err
	}
	gs, err := b.gw.GetGroupStatus(ctx, b.groupID, b.ym)
	if err != nil {
		_, err := b.exec(ctx, "INSERT INTO `group_status` (group_id,year,month) VALUES (?,?,?)",
			b.groupID.Uint64(), b.ym.Year(), b.ym.Month())
		return err
	}
	_, err = b.exec(ctx,
		"INSERT INTO `group_status` (id,group_id,year,month,status,total_views,file,sqlite3) VALUES (?,?,?,?,?,?,?,?)",
		gs.ID, gs.GroupID.Uint64(), b.ym.Year(), b.ym.Month(), gs.Status, gs.TotalViews, nil, gs.Path)
	return err
}

func (b *Backend) groupStatusID(ctx context.Context) (uint64, error) {
	if b.cachedStatusID != 0 {
		return b.cachedStatusID, nil
	}
	b.mu.Lock()
	row := b.db.QueryRowContext(ctx, "SELECT `id` FROM `group_status` WHERE `group_id`=? AND `year`=? AND `month`=?",
		b.groupID.Uint64(), b.ym.Year(), b.ym.Month())
	var id uint64
	err := row.Scan(&id)
	b.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("sqlite: group_status id: %w", err)
	}
	b.cachedStatusID = id
	return id, nil
}

// InsertFiles appends filenames in batches of at most fileInsertBatchSize
// bound parameters (spec §4.4: sqlite's own ceiling is 500).
func (b *Backend) InsertFiles(ctx context.Context, files []string) error {
	for _, batch := range storage.Chunk(files, fileInsertBatchSize) {
		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, f := range batch {
			placeholders[i] = "(?)"
			args[i] = f
		}
		query := "INSERT INTO `files` (`filename`) VALUES " + strings.Join(placeholders, ",")
		if _, err := b.exec(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlite: insert files batch: %w", err)
		}
	}
	return nil
}

// LoadFilesBatch pages over the staged file set.
func (b *Backend) LoadFilesBatch(ctx context.Context, offset, size int) ([]string, error) {
	b.mu.Lock()
	rows, err := b.db.QueryContext(ctx, "SELECT `filename` FROM `files` LIMIT ? OFFSET ?", size, offset)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlite: load files batch: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scan file name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ResetMainPageViewCount zeroes the Main_Page row's view count.
func (b *Backend) ResetMainPageViewCount(ctx context.Context) error {
	_, err := b.exec(ctx, "UPDATE `views` SET `views`=0 WHERE `title`='Main_Page'")
	return err
}

// CreateViewsInDB inserts view placeholders for a batch of keys,
// ignoring duplicates (spec §4.4, original_source
// `add_views_batch_for_files_to_sqlite`).
func (b *Backend) CreateViewsInDB(ctx context.Context, keys []storage.ViewKey) error {
	if len(keys) == 0 {
		return nil
	}
	values := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, fmt.Sprintf("(%d,?,%d,%d,0,%d,%d,0)", k.SiteID, b.ym.Month(), b.ym.Year(), k.NamespaceID, k.PageID))
		args = append(args, k.Title)
	}
	query := "INSERT OR IGNORE INTO `views` (site,title,month,year,done,namespace_id,page_id,views) VALUES " + strings.Join(values, ",")
	_, err := b.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: create views batch: %w", err)
	}
	return nil
}

// GetViewIDSiteIDTitle resolves staged keys to their assigned view ids.
func (b *Backend) GetViewIDSiteIDTitle(ctx context.Context, keys []storage.ViewKey) (map[storage.ViewKey]uint64, error) {
	out := make(map[storage.ViewKey]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("(`site`=%d AND `title`=?)", k.SiteID))
		args = append(args, k.Title)
	}
	query := "SELECT id,site,title FROM `views` WHERE " + strings.Join(clauses, " OR ")

	b.mu.Lock()
	rows, err := b.db.QueryContext(ctx, query, args...)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlite: resolve view ids: %w", err)
	}
	defer rows.Close()

	bySiteTitle := make(map[[2]string]uint64)
	for rows.Next() {
		var viewID, siteID uint64
		var title string
		if err := rows.Scan(&viewID, &siteID, &title); err != nil {
			return nil, fmt.Errorf("sqlite: scan view id row: %w", err)
		}
		bySiteTitle[[2]string{fmt.Sprint(siteID), title}] = viewID
	}
	for _, k := range keys {
		if id, ok := bySiteTitle[[2]string{fmt.Sprint(k.SiteID), k.Title}]; ok {
			out[k] = id
		}
	}
	return out, rows.Err()
}

// InsertGroup2View links each resolved view id to its originating file.
func (b *Backend) InsertGroup2View(ctx context.Context, viewIDToFile map[uint64]string) error {
	if len(viewIDToFile) == 0 {
		return nil
	}
	groupStatusID, err := b.groupStatusID(ctx)
	if err != nil {
		return err
	}
	values := make([]string, 0, len(viewIDToFile))
	args := make([]any, 0, len(viewIDToFile))
	for viewID, image := range viewIDToFile {
		values = append(values, fmt.Sprintf("(%d,%d,?)", groupStatusID, viewID))
		args = append(args, image)
	}
	query := "INSERT OR IGNORE INTO `group2view` (group_status_id,view_id,image) VALUES " + strings.Join(values, ",")
	_, err = b.exec(ctx, query, args...)
	return err
}

// GetViewCountsTodo fetches up to n unresolved view rows.
func (b *Backend) GetViewCountsTodo(ctx context.Context, n int) ([]storage.ViewCount, error) {
	b.mu.Lock()
	rows, err := b.db.QueryContext(ctx,
		"SELECT DISTINCT `views`.`id`,`views`.`site`,`views`.`title`,`views`.`namespace_id` FROM `views` WHERE `done`=0 LIMIT ?", n)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlite: view counts todo: %w", err)
	}
	defer rows.Close()

	var out []storage.ViewCount
	for rows.Next() {
		var vc storage.ViewCount
		if err := rows.Scan(&vc.ViewID, &vc.SiteID, &vc.Title, &vc.NamespaceID); err != nil {
			return nil, fmt.Errorf("sqlite: scan view count todo row: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// UpdateViewCount marks a view row resolved with the given count.
func (b *Backend) UpdateViewCount(ctx context.Context, viewID uint64, count uint64) error {
	_, err := b.exec(ctx, "UPDATE `views` SET `done`=1,`views`=? WHERE `id`=?", count, viewID)
	return err
}

// ViewDone marks a view row resolved with a non-success code.
func (b *Backend) ViewDone(ctx context.Context, viewID uint64, code storage.DoneCode) error {
	_, err := b.exec(ctx, "UPDATE `views` SET `done`=?,`views`=0 WHERE `id`=?", int(code), viewID)
	return err
}

// AddSummaryStatistics aggregates per-site view totals and seals
// total_views on the group_status row (spec §4.4).
func (b *Backend) AddSummaryStatistics(ctx context.Context) error {
	groupStatusID, err := b.groupStatusID(ctx)
	if err != nil {
		return err
	}
	if _, err := b.exec(ctx, "CREATE INDEX IF NOT EXISTS `views_site` ON `views` (site)"); err != nil {
		return err
	}
	if _, err := b.exec(ctx, "DELETE FROM `gs2site`"); err != nil {
		return err
	}
	_, err = b.exec(ctx,
		"INSERT INTO `gs2site` SELECT sites.id,?,sites.id,COUNT(DISTINCT page_id),SUM(views) FROM `views`,`sites` WHERE views.site=sites.id GROUP BY sites.id",
		groupStatusID)
	if err != nil {
		return fmt.Errorf("sqlite: aggregate gs2site: %w", err)
	}
	_, err = b.exec(ctx,
		"UPDATE group_status SET status=?,total_views=(SELECT sum(views) FROM gs2site) WHERE id=?",
		types.StatusViewDataComplete, groupStatusID)
	return err
}

// CreateFinalIndices builds the indices deferred during the bulk-insert
// phase, to keep insert throughput high until the run is done.
func (b *Backend) CreateFinalIndices(ctx context.Context) error {
	if _, err := b.exec(ctx, "CREATE INDEX IF NOT EXISTS `views_views_site_done` ON `views` (`site`,`done`,`views`)"); err != nil {
		return err
	}
	_, err := b.exec(ctx, "CREATE INDEX IF NOT EXISTS `g2v_view_id` ON `group2view` (`view_id`)")
	return err
}

// Finalize copies the temp file to its final dated path and removes the
// temp copy, unless they already are the same file (resumed run).
func (b *Backend) Finalize(ctx context.Context) error {
	if b.pathTmp == b.pathFinal {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.pathFinal), 0o755); err != nil {
		return fmt.Errorf("sqlite: make production directory: %w", err)
	}
	if err := copyFile(b.pathTmp, b.pathFinal); err != nil {
		return fmt.Errorf("sqlite: publish %s: %w", b.pathFinal, err)
	}
	_ = os.Remove(b.pathTmp)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// GetTotalViews reads total_views for this run, 0 if still NULL.
func (b *Backend) GetTotalViews(ctx context.Context) (uint64, error) {
	groupStatusID, err := b.groupStatusID(ctx)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	row := b.db.QueryRowContext(ctx, "SELECT IFNULL(total_views,0) FROM group_status WHERE id=?", groupStatusID)
	b.mu.Unlock()
	var total uint64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: total views: %w", err)
	}
	return total, nil
}
