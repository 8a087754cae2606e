package gateway

import (
	"context"
	"fmt"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// ActiveCategoryGroups returns every active, non-user-name group's id and
// category title (spec §4.7: "enumerate active non-user-name groups").
func (g *Gateway) ActiveCategoryGroups(ctx context.Context) ([]types.Group, error) {
	var groups []types.Group
	err := g.withRetry(ctx, func() error {
		rows, err := g.tool.QueryContext(ctx, `
			SELECT id, category, depth, added_by FROM groups
			WHERE is_active = 1 AND is_user_name = 0`)
		if err != nil {
			return err
		}
		defer rows.Close()
		groups = groups[:0]
		for rows.Next() {
			var groupID uint64
			var group types.Group
			if err := rows.Scan(&groupID, &group.Category, &group.Depth, &group.AddedBy); err != nil {
				return err
			}
			group.ID, err = types.NewGroupId(groupID)
			if err != nil {
				return err
			}
			group.IsActive = true
			groups = append(groups, group)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, baglamaerr.Wrap("active_category_groups", err)
	}
	return groups, nil
}

// DeactivateGroups flips is_active=0 for every id, chunked to stay under
// the driver's parameter limit (spec §4.7: "UPDATE groups SET is_active=0
// WHERE id IN (...)").
func (g *Gateway) DeactivateGroups(ctx context.Context, ids []types.GroupId) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]uint64, len(ids))
	for i, id := range ids {
		values[i] = id.Uint64()
	}

	for _, batch := range chunk(values, g.cfg.BatchSubcategory) {
		query := fmt.Sprintf(`UPDATE groups SET is_active = 0 WHERE id IN (%s)`, placeholders(len(batch)))
		args := make([]any, len(batch))
		for i, v := range batch {
			args[i] = v
		}
		if err := g.withRetry(ctx, func() error {
			_, err := g.tool.ExecContext(ctx, query, args...)
			return err
		}); err != nil {
			return baglamaerr.Wrap("deactivate_groups", err)
		}
	}
	return nil
}

// ClearStaleStatuses deletes every group_status row for (ym) that is not
// VIEW DATA COMPLETE, letting the scheduler's next_all loop re-pick those
// groups (spec §4.6: "stale statuses for (y,m) are cleared unless a flag
// suppresses it").
func (g *Gateway) ClearStaleStatuses(ctx context.Context, ym types.YearMonth) error {
	return g.withRetry(ctx, func() error {
		_, err := g.tool.ExecContext(ctx, `
			DELETE FROM group_status WHERE year = ? AND month = ? AND status != ?`,
			ym.Year(), ym.Month(), string(types.StatusViewDataComplete))
		return err
	})
}
