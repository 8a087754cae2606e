package types

// FileName is a repository file title with underscores, as stored in the
// repository's image/categorylinks tables.
type FileName string

// Embedding (called GlobalImageLink in the repo's own schema) records that
// file_name is embedded on page_title in the given namespace of wiki.
// Immutable within a run.
type Embedding struct {
	Wiki            string
	PageID          uint64
	PageNamespaceID int
	PageTitle       string
	FileName        FileName
}

// ViewDone encodes the outcome of resolving a View row's page-view count.
type ViewDone int8

const (
	// ViewPending has not been attempted yet.
	ViewPending ViewDone = 0
	// ViewDone1 succeeded; Views holds the fetched total.
	ViewDone1 ViewDone = 1
	// ViewDone2 means the site has no server name on record.
	ViewDone2 ViewDone = 2
	// ViewDone3 means the site maps to no known wiki identifier.
	ViewDone3 ViewDone = 3
	// ViewDone4 means the page's namespace could not be resolved to a prefix.
	ViewDone4 ViewDone = 4
)

// View (the sqlite-variant row) represents one (site, page) pair queued
// for, or resolved to, a monthly view count.
type View struct {
	ViewID      uint64
	SiteID      uint64
	Title       string
	NamespaceID int
	PageID      uint64
	Year        int
	Month       int
	Done        ViewDone
	Views       uint64
}

// Group2View links a file to the view row its embedding produced, scoped
// to one group_status run. Realizes "file F caused this page's views to
// be attributed to this group".
type Group2View struct {
	GroupStatusID uint64
	ViewID        uint64
	Image         FileName
}

// ViewData is the server-variant equivalent of View+Group2View combined:
// one row per (group_status, file, page) in a per-month viewdata_YYYY_MM
// table. PageViews is nil until the PageViews Client fills it.
type ViewData struct {
	ID            uint64
	GroupStatusID uint64
	FilesID       uint64
	PagesID       uint64
	PageViews     *uint64
}
