package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/baglama2-go/internal/types"
)

type fakeGateway struct {
	groups           []types.Group
	existing         []string
	deactivated      []types.GroupId
	clearedYM        *types.YearMonth
	activeGroupsErr  error
	existingErr      error
	deactivateErr    error
	clearStatusesErr error
}

func (g *fakeGateway) ActiveCategoryGroups(ctx context.Context) ([]types.Group, error) {
	if g.activeGroupsErr != nil {
		return nil, g.activeGroupsErr
	}
	return g.groups, nil
}

func (g *fakeGateway) ExistingCategories(ctx context.Context, titles []string) ([]string, error) {
	if g.existingErr != nil {
		return nil, g.existingErr
	}
	return g.existing, nil
}

func (g *fakeGateway) DeactivateGroups(ctx context.Context, ids []types.GroupId) error {
	if g.deactivateErr != nil {
		return g.deactivateErr
	}
	g.deactivated = append(g.deactivated, ids...)
	return nil
}

func (g *fakeGateway) ClearStaleStatuses(ctx context.Context, ym types.YearMonth) error {
	if g.clearStatusesErr != nil {
		return g.clearStatusesErr
	}
	g.clearedYM = &ym
	return nil
}

func mustGroupID(t *testing.T, id uint64) types.GroupId {
	t.Helper()
	gid, err := types.NewGroupId(id)
	require.NoError(t, err)
	return gid
}

func TestDeactivateVanishedCategoriesDeactivatesMissingOnes(t *testing.T) {
	gw := &fakeGateway{
		groups: []types.Group{
			{ID: mustGroupID(t, 1), Category: "Still here"},
			{ID: mustGroupID(t, 2), Category: "Gone"},
		},
		existing: []string{"Still here"},
	}
	m := New(gw, nil)

	n, err := m.DeactivateVanishedCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []types.GroupId{mustGroupID(t, 2)}, gw.deactivated)
}

func TestDeactivateVanishedCategoriesNoGroups(t *testing.T) {
	gw := &fakeGateway{}
	m := New(gw, nil)

	n, err := m.DeactivateVanishedCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Nil(t, gw.deactivated)
}

func TestDeactivateVanishedCategoriesAllStillExist(t *testing.T) {
	gw := &fakeGateway{
		groups:   []types.Group{{ID: mustGroupID(t, 1), Category: "Still here"}},
		existing: []string{"Still here"},
	}
	m := New(gw, nil)

	n, err := m.DeactivateVanishedCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, gw.deactivated)
}

func TestClearStaleStatusesSuppressed(t *testing.T) {
	gw := &fakeGateway{}
	m := New(gw, nil)
	ym := mustYM(t, 2023, 5)

	require.NoError(t, m.ClearStaleStatuses(context.Background(), ym, true))
	assert.Nil(t, gw.clearedYM)
}

func TestClearStaleStatusesRuns(t *testing.T) {
	gw := &fakeGateway{}
	m := New(gw, nil)
	ym := mustYM(t, 2023, 5)

	require.NoError(t, m.ClearStaleStatuses(context.Background(), ym, false))
	require.NotNil(t, gw.clearedYM)
	assert.Equal(t, ym, *gw.clearedYM)
}

func mustYM(t *testing.T, year, month int) types.YearMonth {
	t.Helper()
	ym, err := types.NewYearMonth(year, month)
	require.NoError(t, err)
	return ym
}
