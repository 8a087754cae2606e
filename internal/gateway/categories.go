package gateway

import (
	"context"
	"fmt"
	"sort"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
)

// categoryNamespace is the MediaWiki namespace id for Category: pages.
const categoryNamespace = 14

// FindSubcategories computes the deduplicated BFS closure of subcategories
// reachable from roots within depth levels (spec §4.1). The frontier is
// walked one level at a time; each frontier is chunked into batches of at
// most BatchSubcategory titles to stay under the repo DB's parameter
// limit. Terminates when depth is exhausted or a frontier comes back
// empty. Ties within a frontier are broken lexicographically by title.
func (g *Gateway) FindSubcategories(ctx context.Context, roots []string, depth int) ([]string, error) {
	seen := make(map[string]bool, len(roots))
	closure := make([]string, 0, len(roots))
	frontier := make([]string, 0, len(roots))
	for _, r := range roots {
		if !seen[r] {
			seen[r] = true
			closure = append(closure, r)
			frontier = append(frontier, r)
		}
	}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		children, err := g.subcategoriesOf(ctx, frontier)
		if err != nil {
			return nil, err
		}
		sort.Strings(children)

		next := make([]string, 0, len(children))
		for _, c := range children {
			if !seen[c] {
				seen[c] = true
				closure = append(closure, c)
				next = append(next, c)
			}
		}
		frontier = next
	}

	sort.Strings(closure)
	return closure, nil
}

// subcategoriesOf queries the direct subcategories of every title in
// parents, in chunks of at most BatchSubcategory.
func (g *Gateway) subcategoriesOf(ctx context.Context, parents []string) ([]string, error) {
	var out []string
	for _, batch := range chunk(parents, g.cfg.BatchSubcategory) {
		query := fmt.Sprintf(`
			SELECT DISTINCT page_title FROM page
			JOIN categorylinks ON page_id = cl_from
			WHERE cl_type = 'subcat' AND page_namespace = ? AND cl_to IN (%s)`,
			placeholders(len(batch)))
		args := append([]any{categoryNamespace}, argsFor(batch)...)

		var titles []string
		err := g.withRetry(ctx, func() error {
			rows, err := g.commons.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			titles = titles[:0]
			for rows.Next() {
				var t string
				if err := rows.Scan(&t); err != nil {
					return err
				}
				titles = append(titles, t)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, baglamaerr.Wrap("find_subcategories", err)
		}
		out = append(out, titles...)
	}
	return out, nil
}

// GetPagesInCategory returns all pages in namespace ns categorized in any
// subcategory of the closure of cat (bounded by depth), deduplicated and
// sorted. If ns is the category namespace itself, the closure is the
// answer (spec §4.1).
func (g *Gateway) GetPagesInCategory(ctx context.Context, cat string, depth int, ns int) ([]string, error) {
	closure, err := g.FindSubcategories(ctx, []string{cat}, depth)
	if err != nil {
		return nil, err
	}

	if ns == categoryNamespace {
		return closure, nil
	}

	seen := make(map[string]bool)
	var pages []string
	for _, batch := range chunk(closure, g.cfg.BatchPagesInCategory) {
		query := fmt.Sprintf(`
			SELECT DISTINCT page_title FROM page
			JOIN categorylinks ON page_id = cl_from
			WHERE page_namespace = ? AND cl_to IN (%s)`,
			placeholders(len(batch)))
		args := append([]any{ns}, argsFor(batch)...)

		var titles []string
		err := g.withRetry(ctx, func() error {
			rows, err := g.commons.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			titles = titles[:0]
			for rows.Next() {
				var t string
				if err := rows.Scan(&t); err != nil {
					return err
				}
				titles = append(titles, t)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, baglamaerr.Wrap("get_pages_in_category", err)
		}
		for _, t := range titles {
			if !seen[t] {
				seen[t] = true
				pages = append(pages, t)
			}
		}
	}

	sort.Strings(pages)
	return pages, nil
}

// ExistingCategories returns the subset of titles that currently exist as
// category pages in the repo, used by both file discovery (to validate a
// group's category still exists) and control-plane maintenance (to
// deactivate groups whose category has vanished).
func (g *Gateway) ExistingCategories(ctx context.Context, titles []string) ([]string, error) {
	var out []string
	for _, batch := range chunk(titles, g.cfg.BatchSubcategory) {
		query := fmt.Sprintf(`
			SELECT page_title FROM page
			WHERE page_namespace = ? AND page_title IN (%s)`,
			placeholders(len(batch)))
		args := append([]any{categoryNamespace}, argsFor(batch)...)

		var existing []string
		err := g.withRetry(ctx, func() error {
			rows, err := g.commons.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			existing = existing[:0]
			for rows.Next() {
				var t string
				if err := rows.Scan(&t); err != nil {
					return err
				}
				existing = append(existing, t)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, baglamaerr.Wrap("existing_categories", err)
		}
		out = append(out, existing...)
	}
	return out, nil
}
