// Package storage defines the Storage Backend contract (spec §4.4): the
// set of operations a group/month snapshot supports, independent of
// whether it is materialized as a private sqlite file or as rows in the
// shared server database. internal/storage/sqlite and
// internal/storage/server each implement Backend; internal/storage/factory
// selects between them.
package storage

import "context"

// ViewKey identifies one (site, title[, page_id]) pair staged for view
// resolution, the unit create_views_in_db/get_viewid_site_id_title
// operate on.
type ViewKey struct {
	SiteID      uint64
	Title       string
	NamespaceID int
	PageID      uint64
}

// ViewCount is a todo item returned by GetViewCountsTodo: enough to build
// a PageViews request (site's server name is resolved by the caller via
// the Catalog Gateway's site list).
type ViewCount struct {
	ViewID      uint64
	SiteID      uint64
	Title       string
	NamespaceID int
}

// DoneCode enumerates the non-success outcomes ViewDone records (spec
// §4.4 view_done contract: code ranges over {2,3,4}).
type DoneCode int

const (
	DoneNoServer         DoneCode = 2
	DoneUnknownWiki      DoneCode = 3
	DoneNamespaceUnknown DoneCode = 4
)

// Backend is the contract every concrete storage variant implements
// (spec §4.4). Every method is a verb on the group/month snapshot owned
// by the instance; there is one Backend instance per (group, year_month)
// job.
type Backend interface {
	// Initialize prepares the destination for a fresh run: makes sure
	// this run's group_status row exists (the file variant resets its
	// status to empty; the server variant inserts it as GENERATING PAGE
	// LIST when absent) and clears any staging set left over from a
	// prior attempt.
	Initialize(ctx context.Context) error

	// InsertFiles appends file names into the staging set, sub-batching
	// internally to stay under the variant's parameter ceiling.
	InsertFiles(ctx context.Context, files []string) error

	// LoadFilesBatch pages over the staging set, offset/size at a time,
	// so a restarted job can resume file enumeration.
	LoadFilesBatch(ctx context.Context, offset, size int) ([]string, error)

	// ResetMainPageViewCount zeroes the view count of any Main Page row
	// so it cannot dominate totals.
	ResetMainPageViewCount(ctx context.Context) error

	// CreateViewsInDB upserts view placeholders (done=0, views=0) for a
	// batch of keys; duplicates are ignored.
	CreateViewsInDB(ctx context.Context, keys []ViewKey) error

	// GetViewIDSiteIDTitle resolves the staged keys to their assigned
	// view ids.
	GetViewIDSiteIDTitle(ctx context.Context, keys []ViewKey) (map[ViewKey]uint64, error)

	// InsertGroup2View links a view to the file that produced it, scoped
	// to this run's group_status row.
	InsertGroup2View(ctx context.Context, viewIDToFile map[uint64]string) error

	// GetViewCountsTodo fetches up to n unresolved view rows eligible for
	// a PageViews lookup.
	GetViewCountsTodo(ctx context.Context, n int) ([]ViewCount, error)

	// UpdateViewCount marks a view row done=1 with the given count.
	UpdateViewCount(ctx context.Context, viewID uint64, count uint64) error

	// ViewDone marks a view row resolved with a non-success code and
	// views=0.
	ViewDone(ctx context.Context, viewID uint64, code DoneCode) error

	// AddSummaryStatistics sets total_views on this run's group_status
	// row. The file variant also populates per-site aggregates; the
	// server variant writes none.
	AddSummaryStatistics(ctx context.Context) error

	// CreateFinalIndices builds read-optimized indices. A no-op for
	// variants that index eagerly.
	CreateFinalIndices(ctx context.Context) error

	// Finalize publishes/seals the snapshot: for the file variant this
	// copies the temp file to its final path and removes the temp file;
	// for the server variant this clears transient staging rows.
	Finalize(ctx context.Context) error

	// GetTotalViews reads total_views for this run, 0 if still NULL.
	GetTotalViews(ctx context.Context) (uint64, error)

	// Close releases any resources (open file handle, connection) held
	// by this instance.
	Close() error
}
