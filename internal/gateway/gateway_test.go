package gateway

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/baglama2-go/internal/config"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

func testConfig() config.Config {
	return config.Config{
		RetryMaxAttempts:     3,
		HoldOnSeconds:        0,
		BatchSubcategory:     1000,
		BatchPagesInCategory: 1000,
	}
}

func newTestGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()
	toolDB, toolMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = toolDB.Close() })

	commonsDB, commonsMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = commonsDB.Close() })

	gw := NewWithDBs(toolDB, commonsDB, testConfig(), nil)
	return gw, toolMock, commonsMock
}

func TestPlaceholders(t *testing.T) {
	cases := []int{1, 2, 5, 10}
	for _, n := range cases {
		p := placeholders(n)
		assert.Len(t, p, 2*n-1)
	}
	assert.Equal(t, "", placeholders(0))
}

func TestGetGroup(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)

	rows := sqlmock.NewRows([]string{"id", "category", "depth", "is_user_name", "is_active", "added_by"}).
		AddRow(1255, "Images from Archives of Ontario – RG 14-100 Official Road Maps of Ontario", 3, 0, 1, "someone")
	toolMock.ExpectQuery("SELECT id, category, depth, is_user_name, is_active, added_by").
		WithArgs(uint64(1255)).
		WillReturnRows(rows)

	id, err := types.NewGroupId(1255)
	require.NoError(t, err)
	group, err := gw.GetGroup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Images from Archives of Ontario – RG 14-100 Official Road Maps of Ontario", group.Category)
	assert.Equal(t, 3, group.Depth)
	assert.False(t, group.IsUserName)
	assert.True(t, group.IsActive)

	require.NoError(t, toolMock.ExpectationsWereMet())
}

func TestGetGroupUTF8RoundTrip(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)

	want := "Files of Museum für Kunst und Gewerbe Hamburg uploaded by RKBot"
	rows := sqlmock.NewRows([]string{"id", "category", "depth", "is_user_name", "is_active", "added_by"}).
		AddRow(292, want, 0, 1, 1, "someone")
	toolMock.ExpectQuery("SELECT id, category, depth, is_user_name, is_active, added_by").
		WithArgs(uint64(292)).
		WillReturnRows(rows)

	id, err := types.NewGroupId(292)
	require.NoError(t, err)
	group, err := gw.GetGroup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, want, group.Category)
}

func TestGetSitesCachesAfterFirstCall(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)

	rows := sqlmock.NewRows([]string{"id", "server", "giu_code", "project", "language", "name", "grok_code"}).
		AddRow(1, "en.wikipedia.org", "", "wikipedia", "en", "English Wikipedia", "")
	toolMock.ExpectQuery("SELECT id, server, giu_code, project, language, name, grok_code FROM sites").
		WillReturnRows(rows)

	ctx := context.Background()
	sites1, err := gw.GetSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites1, 1)

	sites2, err := gw.GetSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, sites1, sites2)

	require.NoError(t, toolMock.ExpectationsWereMet())
}

func TestWikiSiteMap(t *testing.T) {
	sites := []types.Site{
		{ID: 1, Language: "commons", Project: "wikimedia"},
		{ID: 2, Language: "en", Project: "wikipedia"},
	}
	m := WikiSiteMap(sites)
	assert.Equal(t, uint64(1), m["commonswiki"].ID)
	assert.Equal(t, uint64(2), m["enwiki"].ID)
}

func TestGetNextGroupIDNoneEligible(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)

	toolMock.ExpectQuery("SELECT g.id FROM groups g").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ym, err := types.NewYearMonth(2022, 10)
	require.NoError(t, err)
	_, err = gw.GetNextGroupID(context.Background(), ym, false)
	require.Error(t, err)
}

func TestFindSubcategoriesTerminatesOnEmptyFrontier(t *testing.T) {
	gw, _, commonsMock := newTestGateway(t)

	commonsMock.ExpectQuery("SELECT DISTINCT page_title FROM page").
		WillReturnRows(sqlmock.NewRows([]string{"page_title"}))

	closure, err := gw.FindSubcategories(context.Background(), []string{"Blue sky in Berlin"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue sky in Berlin"}, closure)
	require.NoError(t, commonsMock.ExpectationsWereMet())
}

func TestActiveCategoryGroups(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)

	rows := sqlmock.NewRows([]string{"id", "category", "depth", "added_by"}).
		AddRow(1, "Maps of Ontario", 2, "someone").
		AddRow(2, "Maps of Quebec", 1, "someone else")
	toolMock.ExpectQuery("SELECT id, category, depth, added_by FROM groups").
		WillReturnRows(rows)

	groups, err := gw.ActiveCategoryGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Maps of Ontario", groups[0].Category)
	assert.True(t, groups[0].IsActive)
	require.NoError(t, toolMock.ExpectationsWereMet())
}

func TestDeactivateGroups(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)

	id1, err := types.NewGroupId(1)
	require.NoError(t, err)
	id2, err := types.NewGroupId(2)
	require.NoError(t, err)

	toolMock.ExpectExec("UPDATE groups SET is_active = 0 WHERE id IN").
		WithArgs(uint64(1), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, gw.DeactivateGroups(context.Background(), []types.GroupId{id1, id2}))
	require.NoError(t, toolMock.ExpectationsWereMet())
}

func TestDeactivateGroupsNoopOnEmpty(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)
	require.NoError(t, gw.DeactivateGroups(context.Background(), nil))
	require.NoError(t, toolMock.ExpectationsWereMet())
}

func TestClearStaleStatuses(t *testing.T) {
	gw, toolMock, _ := newTestGateway(t)
	ym, err := types.NewYearMonth(2023, 5)
	require.NoError(t, err)

	toolMock.ExpectExec("DELETE FROM group_status WHERE year = \\? AND month = \\? AND status != \\?").
		WithArgs(2023, 5, string(types.StatusViewDataComplete)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, gw.ClearStaleStatuses(context.Background(), ym))
	require.NoError(t, toolMock.ExpectationsWereMet())
}
