// Package maintenance implements Control-plane Maintenance (spec §4.7):
// deactivating groups whose backing category has vanished from the repo,
// and clearing stale per-month status rows before a scheduling sweep.
package maintenance

import (
	"context"
	"log/slog"

	"github.com/magnusmanske/baglama2-go/internal/types"
)

// Gateway is the subset of *gateway.Gateway maintenance depends on,
// narrowed to an interface so it can be exercised against a fake.
type Gateway interface {
	ActiveCategoryGroups(ctx context.Context) ([]types.Group, error)
	ExistingCategories(ctx context.Context, titles []string) ([]string, error)
	DeactivateGroups(ctx context.Context, ids []types.GroupId) error
	ClearStaleStatuses(ctx context.Context, ym types.YearMonth) error
}

// Maintenance runs the control-plane sweeps. One instance is reused
// across scheduler invocations.
type Maintenance struct {
	Gateway Gateway
	Log     *slog.Logger
}

// New builds a Maintenance over gw. A nil logger falls back to
// slog.Default at call time.
func New(gw Gateway, log *slog.Logger) *Maintenance {
	return &Maintenance{Gateway: gw, Log: log}
}

func (m *Maintenance) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

// DeactivateVanishedCategories enumerates every active, non-user-name
// group, tests its category for continued existence in the repo, and
// deactivates any whose category page is gone (spec §4.7).
func (m *Maintenance) DeactivateVanishedCategories(ctx context.Context) (int, error) {
	groups, err := m.Gateway.ActiveCategoryGroups(ctx)
	if err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, nil
	}

	titles := make([]string, len(groups))
	for i, g := range groups {
		titles[i] = g.Category
	}
	existing, err := m.Gateway.ExistingCategories(ctx, titles)
	if err != nil {
		return 0, err
	}
	stillExists := make(map[string]bool, len(existing))
	for _, t := range existing {
		stillExists[t] = true
	}

	var vanished []types.GroupId
	for _, g := range groups {
		if !stillExists[g.Category] {
			vanished = append(vanished, g.ID)
		}
	}
	if len(vanished) == 0 {
		return 0, nil
	}

	m.logger().Info("deactivating groups with vanished categories", "count", len(vanished))
	if err := m.Gateway.DeactivateGroups(ctx, vanished); err != nil {
		return 0, err
	}
	return len(vanished), nil
}

// ClearStaleStatuses deletes non-terminal group_status rows for ym,
// skipped when suppress is true (spec §4.6: "unless a flag suppresses
// it").
func (m *Maintenance) ClearStaleStatuses(ctx context.Context, ym types.YearMonth, suppress bool) error {
	if suppress {
		return nil
	}
	m.logger().Info("clearing stale statuses", "year_month", ym)
	return m.Gateway.ClearStaleStatuses(ctx, ym)
}
