package gateway

import (
	"context"
	"database/sql"
	"math/rand"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// GetGroup returns the group row with the given id, or ErrNotFound.
func (g *Gateway) GetGroup(ctx context.Context, id types.GroupId) (types.Group, error) {
	var group types.Group
	var groupID uint64
	var isUserName, isActive int
	err := g.withRetry(ctx, func() error {
		row := g.tool.QueryRowContext(ctx, `
			SELECT id, category, depth, is_user_name, is_active, added_by
			FROM groups WHERE id = ?`, id.Uint64())
		return row.Scan(&groupID, &group.Category, &group.Depth, &isUserName, &isActive, &group.AddedBy)
	})
	if err != nil {
		return types.Group{}, baglamaerr.Wrap("get_group", err)
	}
	group.ID, err = types.NewGroupId(groupID)
	if err != nil {
		return types.Group{}, err
	}
	group.IsUserName = isUserName != 0
	group.IsActive = isActive != 0
	return group, nil
}

// GetGroupStatus returns the existing status row for (id, ym), or
// ErrNotFound if the job has not been started.
func (g *Gateway) GetGroupStatus(ctx context.Context, id types.GroupId, ym types.YearMonth) (types.GroupStatus, error) {
	var status types.GroupStatus
	var groupID uint64
	var year, month int
	var totalViews sql.NullInt64
	var path sql.NullString
	var storage string
	err := g.withRetry(ctx, func() error {
		row := g.tool.QueryRowContext(ctx, `
			SELECT id, group_id, year, month, status, total_views, storage, path
			FROM group_status WHERE group_id = ? AND year = ? AND month = ?`,
			id.Uint64(), ym.Year(), ym.Month())
		return row.Scan(&status.ID, &groupID, &year, &month,
			&status.Status, &totalViews, &storage, &path)
	})
	if err != nil {
		return types.GroupStatus{}, baglamaerr.Wrap("get_group_status", err)
	}
	status.GroupID, err = types.NewGroupId(groupID)
	if err != nil {
		return types.GroupStatus{}, err
	}
	status.Period, err = types.NewYearMonth(year, month)
	if err != nil {
		return types.GroupStatus{}, err
	}
	status.Storage = types.StorageKind(storage)
	if path.Valid {
		status.Path = path.String
	}
	if totalViews.Valid {
		v := uint64(totalViews.Int64)
		status.TotalViews = &v
	}
	return status, nil
}

// SetGroupStatus is an idempotent upsert of the (group, year, month)
// status row (spec §4.1).
func (g *Gateway) SetGroupStatus(ctx context.Context, id types.GroupId, ym types.YearMonth, status types.Status, totalViews *uint64, storageKind types.StorageKind, path string) error {
	return g.withRetry(ctx, func() error {
		_, err := g.tool.ExecContext(ctx, `
			INSERT INTO group_status (group_id, year, month, status, total_views, storage, path)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE status = VALUES(status), total_views = VALUES(total_views),
				storage = VALUES(storage), path = VALUES(path)`,
			id.Uint64(), ym.Year(), ym.Month(), string(status), nullableViews(totalViews), string(storageKind), path)
		return baglamaerr.Wrap("set_group_status", err)
	})
}

func nullableViews(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

// GetNextGroupID returns a random eligible GroupId whose group is active
// and has no status row for (y, m); if requiresPrevious is true, it
// additionally requires a status row for any earlier (y', m'). Returns
// ErrNotFound if no group is eligible.
func (g *Gateway) GetNextGroupID(ctx context.Context, ym types.YearMonth, requiresPrevious bool) (types.GroupId, error) {
	query := `
		SELECT g.id FROM groups g
		WHERE g.is_active = 1
		AND NOT EXISTS (
			SELECT 1 FROM group_status gs
			WHERE gs.group_id = g.id AND gs.year = ? AND gs.month = ?
		)`
	args := []any{ym.Year(), ym.Month()}
	if requiresPrevious {
		query += `
		AND EXISTS (
			SELECT 1 FROM group_status gs2
			WHERE gs2.group_id = g.id AND (gs2.year < ? OR (gs2.year = ? AND gs2.month < ?))
		)`
		args = append(args, ym.Year(), ym.Year(), ym.Month())
	}

	var ids []uint64
	err := g.withRetry(ctx, func() error {
		rows, err := g.tool.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		ids = ids[:0]
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, baglamaerr.Wrap("get_next_group_id", err)
	}
	if len(ids) == 0 {
		return 0, baglamaerr.Wrap("get_next_group_id", baglamaerr.ErrNotFound)
	}
	pick := ids[rand.Intn(len(ids))]
	return types.NewGroupId(pick)
}
