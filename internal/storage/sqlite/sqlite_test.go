package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/baglama2-go/internal/storage"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

const testSchema = `
CREATE TABLE files (filename TEXT);
CREATE TABLE sites (id INTEGER, grok_code TEXT, server TEXT, giu_code TEXT, project TEXT, language TEXT, name TEXT);
CREATE TABLE groups (id INTEGER, category TEXT, depth INTEGER, added_by TEXT);
CREATE TABLE group_status (id INTEGER PRIMARY KEY, group_id INTEGER, year INTEGER, month INTEGER, status TEXT, total_views INTEGER, file TEXT, sqlite3 TEXT);
CREATE TABLE views (id INTEGER PRIMARY KEY, site INTEGER, title TEXT, month INTEGER, year INTEGER, done INTEGER, namespace_id INTEGER, page_id INTEGER, views INTEGER);
CREATE TABLE group2view (group_status_id INTEGER, view_id INTEGER, image TEXT);
CREATE TABLE gs2site (site_id INTEGER, group_status_id INTEGER, site INTEGER, pages INTEGER, views INTEGER);
`

func openTestDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	groupID, err := types.NewGroupId(42)
	require.NoError(t, err)
	ym, err := types.NewYearMonth(2022, 10)
	require.NoError(t, err)

	b := &Backend{groupID: groupID, ym: ym}
	b.pathTmp = filepath.Join(t.TempDir(), "test.sqlite3")
	b.pathFinal = b.pathTmp

	db, err := openTestDB(b.pathTmp)
	require.NoError(t, err)
	b.db = db
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	_, err = b.db.ExecContext(ctx, testSchema)
	require.NoError(t, err)
	_, err = b.db.ExecContext(ctx, "INSERT INTO group_status (id,group_id,year,month,status) VALUES (1,42,2022,10,'')")
	require.NoError(t, err)
	return b
}

func TestInsertFilesAndLoadFilesBatch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	files := []string{"File:A.jpg", "File:B.jpg", "File:C.jpg"}
	require.NoError(t, b.InsertFiles(ctx, files))

	batch, err := b.LoadFilesBatch(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	batch2, err := b.LoadFilesBatch(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, batch2, 1)
}

func TestCreateViewsInDBAndResolveIDs(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	keys := []storage.ViewKey{
		{SiteID: 1, Title: "Foo", NamespaceID: 0, PageID: 10},
		{SiteID: 1, Title: "Bar", NamespaceID: 0, PageID: 11},
	}
	require.NoError(t, b.CreateViewsInDB(ctx, keys))

	resolved, err := b.GetViewIDSiteIDTitle(ctx, keys)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
}

func TestResetMainPageViewCount(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.db.ExecContext(ctx, "INSERT INTO views (site,title,month,year,done,namespace_id,page_id,views) VALUES (1,'Main_Page',10,2022,1,0,1,500)")
	require.NoError(t, err)

	require.NoError(t, b.ResetMainPageViewCount(ctx))

	var views int
	row := b.db.QueryRowContext(ctx, "SELECT views FROM views WHERE title='Main_Page'")
	require.NoError(t, row.Scan(&views))
	require.Equal(t, 0, views)
}

func TestGetTotalViewsDefaultsToZero(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	total, err := b.GetTotalViews(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), total)
}
