// Package server implements the shared-database variant of the Storage
// Backend (spec §4.4): every job writes into the tool's own MySQL-
// compatible database rather than a private file, sharing global `files`
// and `pages` dedup tables plus a per-month `viewdata_YYYY_MM` table.
//
// Grounded on original_source/src/db_mysql2.rs: the two-step
// INSERT IGNORE + re-select-by-natural-key pattern for acquiring
// surrogate keys (create_files/match_existing_files,
// create_pages/match_existing_pages), the dynamic per-month table name,
// and the two-statement finalize sequence. Retry wraps every statement
// via storage.WithRetry, following the teacher's withRetry convention in
// internal/storage/dolt/store.go.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

const (
	filesChunkSize = 1000
	pagesChunkSize = 2000
	retryWait      = 2 * time.Second
)

// Backend is the shared-database variant. One instance per (group, ym)
// job; db is a pooled *sql.DB so concurrent jobs may share it safely.
type Backend struct {
	db  *sql.DB
	log *slog.Logger
	cfg *config.Config

	groupID       types.GroupId
	ym            types.YearMonth
	groupStatusID uint64
}

// Open wires a server-variant Backend over an already-open tool database
// pool.
func Open(cfg *config.Config, db *sql.DB, groupID types.GroupId, ym types.YearMonth, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{db: db, log: log, cfg: cfg, groupID: groupID, ym: ym}
}

func (b *Backend) tableName() string {
	return b.ym.ViewdataTableName()
}

// Path always returns "": the server variant has no per-job artifact
// path, only rows in shared tables (spec §4.4 finalize note).
func (b *Backend) Path() string { return "" }

func (b *Backend) retry(ctx context.Context, op func() error) error {
	return storage.WithRetry(ctx, b.cfg.RetryMaxAttempts, retryWait, op)
}

func (b *Backend) exec(ctx context.Context, query string, args ...any) error {
	return b.retry(ctx, func() error {
		_, err := b.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Close is a no-op: the underlying pool outlives any single job.
func (b *Backend) Close() error { return nil }

// Initialize ensures this month's viewdata table exists, inserts a
// GENERATING PAGE LIST group_status row if one is not already present,
// and clears any tmp_files rows left over from a prior attempt (spec
// §4.4, original_source `ensure_table_exists`/`start_missing_groups`).
func (b *Backend) Initialize(ctx context.Context) error {
	table := b.tableName()
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS `+"`%s`"+` (
		id INT UNSIGNED NOT NULL AUTO_INCREMENT,
		group_status_id INT UNSIGNED NOT NULL,
		files_id INT UNSIGNED NOT NULL,
		pages_id INT UNSIGNED NOT NULL,
		page_views INT UNSIGNED DEFAULT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY %s_idx1 (group_status_id, files_id, pages_id),
		KEY %s_idx2 (pages_id),
		KEY %s_idx3 (page_views)
	) ENGINE=InnoDB DEFAULT CHARSET=ascii`, table, table, table, table)
	if err := b.exec(ctx, createTable); err != nil {
		return fmt.Errorf("server: ensure viewdata table: %w", err)
	}

	err := b.exec(ctx,
		"INSERT IGNORE INTO group_status (group_id,year,month,status,storage) VALUES (?,?,?,?,?)",
		b.groupID.Uint64(), b.ym.Year(), b.ym.Month(), types.StatusGeneratingPageList, types.StorageMySQL2)
	if err != nil {
		return fmt.Errorf("server: upsert group_status: %w", err)
	}

	err = b.retry(ctx, func() error {
		row := b.db.QueryRowContext(ctx, "SELECT id FROM group_status WHERE group_id=? AND year=? AND month=?",
			b.groupID.Uint64(), b.ym.Year(), b.ym.Month())
		return row.Scan(&b.groupStatusID)
	})
	if err != nil {
		return err
	}

	return b.exec(ctx, "DELETE FROM `tmp_files` WHERE group_status_id=?", b.groupStatusID)
}

// InsertFiles stages file names into tmp_files, scoped to this job, in
// chunks of at most filesChunkSize rows.
func (b *Backend) InsertFiles(ctx context.Context, files []string) error {
	for _, batch := range storage.Chunk(files, filesChunkSize) {
		values := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, f := range batch {
			values[i] = fmt.Sprintf("(%d,?)", b.groupStatusID)
			args[i] = f
		}
		query := "INSERT IGNORE INTO `tmp_files` (`group_status_id`,`name`) VALUES " + strings.Join(values, ",")
		if err := b.exec(ctx, query, args...); err != nil {
			return fmt.Errorf("server: stage files batch: %w", err)
		}
	}
	return nil
}

// LoadFilesBatch pages over this job's staged files.
func (b *Backend) LoadFilesBatch(ctx context.Context, offset, size int) ([]string, error) {
	var out []string
	err := b.retry(ctx, func() error {
		out = nil
		rows, err := b.db.QueryContext(ctx, "SELECT `name` FROM `tmp_files` WHERE `group_status_id`=? LIMIT ? OFFSET ?",
			b.groupStatusID, size, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	return out, err
}

// ResetMainPageViewCount zeroes any already-resolved Main_Page row in
// this month's viewdata table belonging to this job.
func (b *Backend) ResetMainPageViewCount(ctx context.Context) error {
	query := fmt.Sprintf(
		"UPDATE `%s` AS vd, `pages` AS p SET vd.page_views=0 WHERE vd.group_status_id=? AND vd.pages_id=p.id AND p.title='Main_Page'",
		b.tableName())
	return b.exec(ctx, query)
}

// ensureFilesExist resolves file names to surrogate ids, creating
// missing rows in the shared `files` table first (spec §4.4 two-step
// pattern).
func (b *Backend) ensureFilesExist(ctx context.Context, names []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(names))
	if len(names) == 0 {
		return out, nil
	}
	if err := b.matchExistingFiles(ctx, names, out); err != nil {
		return nil, err
	}
	var missing []string
	for _, n := range names {
		if _, ok := out[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	for _, batch := range storage.Chunk(missing, filesChunkSize) {
		args := make([]any, len(batch))
		for i, n := range batch {
			args[i] = n
		}
		query := "INSERT IGNORE INTO `files` (`name`) VALUES " + strings.Join(repeat("(?)", len(batch)), ",")
		if err := b.exec(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("server: create files: %w", err)
		}
	}
	if err := b.matchExistingFiles(ctx, missing, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) matchExistingFiles(ctx context.Context, names []string, out map[string]uint64) error {
	for _, batch := range storage.Chunk(names, filesChunkSize*10) {
		args := make([]any, len(batch))
		for i, n := range batch {
			args[i] = n
		}
		query := "SELECT `id`,`name` FROM `files` WHERE `name` IN (" + storage.Placeholders(len(batch)) + ")"
		err := b.retry(ctx, func() error {
			rows, err := b.db.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id uint64
				var name string
				if err := rows.Scan(&id, &name); err != nil {
					return err
				}
				out[name] = id
			}
			return rows.Err()
		})
		if err != nil {
			return fmt.Errorf("server: match existing files: %w", err)
		}
	}
	return nil
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// CreateViewsInDB ensures a `pages` row exists for every key. The server
// variant has no file-less "view placeholder" concept: a viewdata row
// also needs a files_id, which InsertGroup2View supplies once the
// originating file is known, so this step only guarantees the page
// rows exist (spec §4.4 two-step pattern, applied to `pages` rather
// than a placeholder `views` row).
func (b *Backend) CreateViewsInDB(ctx context.Context, keys []storage.ViewKey) error {
	_, err := b.ensurePagesExist(ctx, keys)
	return err
}

func (b *Backend) ensurePagesExist(ctx context.Context, keys []storage.ViewKey) (map[storage.ViewKey]uint64, error) {
	out := make(map[storage.ViewKey]uint64, len(keys))
	if err := b.matchExistingPages(ctx, keys, out); err != nil {
		return nil, err
	}
	var missing []storage.ViewKey
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	for _, batch := range storage.Chunk(missing, pagesChunkSize) {
		values := make([]string, len(batch))
		args := make([]any, 0, len(batch)*3)
		for i, k := range batch {
			values[i] = "(?,?,?)"
			args = append(args, k.SiteID, k.Title, k.NamespaceID)
		}
		query := "INSERT IGNORE INTO `pages` (`site`,`title`,`namespace_id`) VALUES " + strings.Join(values, ",")
		if err := b.exec(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("server: create pages: %w", err)
		}
	}
	if err := b.matchExistingPages(ctx, missing, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) matchExistingPages(ctx context.Context, keys []storage.ViewKey, out map[storage.ViewKey]uint64) error {
	for _, batch := range storage.Chunk(keys, pagesChunkSize) {
		clauses := make([]string, len(batch))
		args := make([]any, 0, len(batch)*3)
		for i, k := range batch {
			clauses[i] = "(site=? AND title=? AND namespace_id=?)"
			args = append(args, k.SiteID, k.Title, k.NamespaceID)
		}
		query := "SELECT `id`,`site`,`title`,`namespace_id` FROM `pages` WHERE " + strings.Join(clauses, " OR ")
		err := b.retry(ctx, func() error {
			rows, err := b.db.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id, siteID uint64
				var title string
				var namespaceID int
				if err := rows.Scan(&id, &siteID, &title, &namespaceID); err != nil {
					return err
				}
				out[storage.ViewKey{SiteID: siteID, Title: title, NamespaceID: namespaceID}] = id
			}
			return rows.Err()
		})
		if err != nil {
			return fmt.Errorf("server: match existing pages: %w", err)
		}
	}
	return nil
}

// GetViewIDSiteIDTitle resolves keys to their `pages` row ids. The
// server variant keys per-job view-resolution state on pages_id rather
// than on a private viewdata row: two files embedding the same page in
// the same job share one pages_id, so resolving it once here and
// fanning the PageViews result out (via UpdateViewCount/ViewDone below)
// avoids a duplicate lookup for the same page.
func (b *Backend) GetViewIDSiteIDTitle(ctx context.Context, keys []storage.ViewKey) (map[storage.ViewKey]uint64, error) {
	found := make(map[storage.ViewKey]uint64, len(keys))
	if err := b.matchExistingPages(ctx, keys, found); err != nil {
		return nil, err
	}
	// matchExistingPages keys its results without PageID; map them back
	// onto the caller's own keys.
	out := make(map[storage.ViewKey]uint64, len(keys))
	for _, k := range keys {
		if id, ok := found[storage.ViewKey{SiteID: k.SiteID, Title: k.Title, NamespaceID: k.NamespaceID}]; ok {
			out[k] = id
		}
	}
	return out, nil
}

// InsertGroup2View inserts the viewdata link row for each resolved
// (pages_id, file) pair, creating the file row first if needed (spec
// §4.4 two-step pattern, applied to `files`). viewIDToFile's keys are
// pages_ids, as returned by GetViewIDSiteIDTitle/CreateViewsInDB.
func (b *Backend) InsertGroup2View(ctx context.Context, viewIDToFile map[uint64]string) error {
	if len(viewIDToFile) == 0 {
		return nil
	}
	fileNames := make([]string, 0, len(viewIDToFile))
	for _, name := range viewIDToFile {
		fileNames = append(fileNames, name)
	}
	fileIDs, err := b.ensureFilesExist(ctx, fileNames)
	if err != nil {
		return err
	}

	pageIDs := make([]uint64, 0, len(viewIDToFile))
	for pageID := range viewIDToFile {
		pageIDs = append(pageIDs, pageID)
	}
	for _, batch := range storage.Chunk(pageIDs, pagesChunkSize) {
		values := make([]string, 0, len(batch))
		for _, pageID := range batch {
			fileID, ok := fileIDs[viewIDToFile[pageID]]
			if !ok {
				continue
			}
			values = append(values, fmt.Sprintf("(%d,%d,%d)", b.groupStatusID, fileID, pageID))
		}
		if len(values) == 0 {
			continue
		}
		query := fmt.Sprintf("INSERT IGNORE INTO `%s` (group_status_id,files_id,pages_id) VALUES %s",
			b.tableName(), strings.Join(values, ","))
		if err := b.exec(ctx, query); err != nil {
			return fmt.Errorf("server: insert viewdata rows: %w", err)
		}
	}
	return nil
}

// GetViewCountsTodo fetches up to n distinct pages for this job still
// awaiting a PageViews lookup (spec §4.4, original_source
// `load_missing_views`). ViewID in the returned ViewCount is the
// pages_id, matching GetViewIDSiteIDTitle/UpdateViewCount/ViewDone.
func (b *Backend) GetViewCountsTodo(ctx context.Context, n int) ([]storage.ViewCount, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT p.id, p.site, p.title, p.namespace_id FROM `%s` AS vd, `pages` AS p "+
			"WHERE vd.group_status_id=? AND vd.page_views IS NULL AND vd.pages_id=p.id LIMIT ?",
		b.tableName())
	var out []storage.ViewCount
	err := b.retry(ctx, func() error {
		out = nil
		rows, err := b.db.QueryContext(ctx, query, b.groupStatusID, n)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var vc storage.ViewCount
			if err := rows.Scan(&vc.ViewID, &vc.SiteID, &vc.Title, &vc.NamespaceID); err != nil {
				return err
			}
			out = append(out, vc)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateViewCount marks every viewdata row for this job sharing pagesID
// resolved with the given count, so a page embedded by several files
// only needs one PageViews lookup (spec §4.4's CASE-WHEN batch update,
// applied per resolved page rather than pre-built across all of them).
func (b *Backend) UpdateViewCount(ctx context.Context, pagesID uint64, count uint64) error {
	query := fmt.Sprintf("UPDATE `%s` SET page_views=? WHERE group_status_id=? AND pages_id=?", b.tableName())
	return b.exec(ctx, query, count, b.groupStatusID, pagesID)
}

// ViewDone marks every viewdata row for this job sharing pagesID
// resolved with zero views; the server variant has no separate
// done-code column, so every non-success code collapses to "resolved,
// zero views" (spec §4.4 server-variant note).
func (b *Backend) ViewDone(ctx context.Context, pagesID uint64, _ storage.DoneCode) error {
	query := fmt.Sprintf("UPDATE `%s` SET page_views=0 WHERE group_status_id=? AND pages_id=?", b.tableName())
	return b.exec(ctx, query, b.groupStatusID, pagesID)
}

// AddSummaryStatistics runs the teacher-grounded two-statement finalize
// sequence scoped to this job: first promotes group_status to VIEW DATA
// COMPLETE once no dependent page_views is still NULL, then backfills
// total_views with zero via COALESCE for the case where the group has no
// views at all (spec §4.4, original_source `finalize_group_status`).
func (b *Backend) AddSummaryStatistics(ctx context.Context) error {
	table := b.tableName()
	query1 := fmt.Sprintf(
		"UPDATE group_status SET status=?, total_views=(SELECT SUM(page_views) FROM `%s` WHERE group_status_id=group_status.id) "+
			"WHERE id=? AND status=? AND NOT EXISTS (SELECT * FROM `%s` WHERE group_status_id=group_status.id AND page_views IS NULL)",
		table, table)
	if err := b.exec(ctx, query1, types.StatusViewDataComplete, b.groupStatusID, types.StatusScanned); err != nil {
		return fmt.Errorf("server: finalize group_status: %w", err)
	}

	query2 := fmt.Sprintf(
		"UPDATE group_status SET total_views=(SELECT COALESCE(SUM(page_views),0) FROM `%s` WHERE group_status_id=group_status.id) "+
			"WHERE id=? AND status=? AND total_views IS NULL",
		table)
	if err := b.exec(ctx, query2, b.groupStatusID, types.StatusViewDataComplete); err != nil {
		return fmt.Errorf("server: backfill total_views: %w", err)
	}
	return nil
}

// CreateFinalIndices is a no-op: the shared tables are indexed eagerly
// at table-creation time.
func (b *Backend) CreateFinalIndices(ctx context.Context) error { return nil }

// Finalize clears this job's transient tmp_files staging rows.
func (b *Backend) Finalize(ctx context.Context) error {
	return b.exec(ctx, "DELETE FROM `tmp_files` WHERE group_status_id=?", b.groupStatusID)
}

// GetTotalViews reads total_views for this job, 0 if still NULL.
func (b *Backend) GetTotalViews(ctx context.Context) (uint64, error) {
	var total uint64
	err := b.retry(ctx, func() error {
		row := b.db.QueryRowContext(ctx, "SELECT IFNULL(total_views,0) FROM group_status WHERE id=?", b.groupStatusID)
		return row.Scan(&total)
	})
	return total, err
}
