package gateway

import (
	"context"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// GetSites returns the full cached site vector. It is populated once, at
// the first call, and reused for the lifetime of the process (spec §4.1:
// "populated once at init"; §3 invariant: "the mapping is loaded once per
// process and cached").
func (g *Gateway) GetSites(ctx context.Context) ([]types.Site, error) {
	g.sitesOnce.Do(func() {
		g.sites, g.sitesErr = g.loadSites(ctx)
	})
	if g.sitesErr != nil {
		return nil, g.sitesErr
	}
	out := make([]types.Site, len(g.sites))
	copy(out, g.sites)
	return out, nil
}

func (g *Gateway) loadSites(ctx context.Context) ([]types.Site, error) {
	var sites []types.Site
	err := g.withRetry(ctx, func() error {
		rows, err := g.tool.QueryContext(ctx, `
			SELECT id, server, giu_code, project, language, name, grok_code FROM sites`)
		if err != nil {
			return err
		}
		defer rows.Close()
		sites = sites[:0]
		for rows.Next() {
			var s types.Site
			if err := rows.Scan(&s.ID, &s.Server, &s.GiuCode, &s.Project, &s.Language, &s.Name, &s.GrokCode); err != nil {
				return err
			}
			sites = append(sites, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, baglamaerr.Wrap("get_sites", err)
	}
	return sites, nil
}

// WikiSiteMap builds the wiki_id -> Site map the page-discovery step
// needs to translate a globalimagelinks "wiki" column into the Site that
// owns it. Unknown wikis are simply absent from the map (spec §4.5 step
// 3: "unknown wikis are silently skipped").
func WikiSiteMap(sites []types.Site) map[string]types.Site {
	m := make(map[string]types.Site, len(sites))
	for _, s := range sites {
		m[s.WikiID()] = s
	}
	return m
}
