// Package namespace implements the Namespace Resolver (spec §4.2): a
// process-wide, memoized map wiki -> (namespace_id -> canonical prefix),
// backed by the live MediaWiki siteinfo API.
//
// The cache tolerates concurrent reads and concurrent inserts; per the
// design note in spec §9, the HTTP fetch happens outside any lock and the
// result is inserted with "first writer wins" semantics.
package namespace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Fetcher retrieves the namespace-id -> canonical-prefix map for a wiki
// from its siteinfo endpoint. Implemented by *Resolver's default HTTP
// client; swappable in tests.
type Fetcher func(ctx context.Context, wiki string) (map[int]string, error)

// Resolver is the process-wide namespace cache.
type Resolver struct {
	fetch Fetcher

	mu    sync.RWMutex
	cache map[string]map[int]string // wiki -> namespace_id -> prefix
}

// New builds a Resolver that fetches siteinfo over HTTP.
func New(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Resolver{
		fetch: httpFetcher(client),
		cache: make(map[string]map[int]string),
	}
}

// NewWithFetcher builds a Resolver over a caller-supplied Fetcher, used in
// tests to avoid real network calls.
func NewWithFetcher(fetch Fetcher) *Resolver {
	return &Resolver{fetch: fetch, cache: make(map[string]map[int]string)}
}

// namespacesFor returns the full namespace map for wiki, fetching and
// caching it on first use. Concurrent misses for the same wiki may race
// and fetch twice; the first writer to store wins (spec §3 invariant),
// later writers discard their own result and return the cached one.
func (r *Resolver) namespacesFor(ctx context.Context, wiki string) (map[int]string, bool) {
	r.mu.RLock()
	m, ok := r.cache[wiki]
	r.mu.RUnlock()
	if ok {
		return m, true
	}

	fetched, err := r.fetch(ctx, wiki)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	if existing, ok := r.cache[wiki]; ok {
		m = existing
	} else {
		r.cache[wiki] = fetched
		m = fetched
	}
	r.mu.Unlock()
	return m, true
}

// Prefix resolves the canonical prefix for (wiki, namespaceID). An empty
// prefix means the title is used as-is. Returns false if the wiki is
// unknown or the siteinfo call failed — callers mark the affected view
// row as done=4 (NamespaceUnknown) in that case (spec §4.2, §7).
func (r *Resolver) Prefix(ctx context.Context, wiki string, namespaceID int) (string, bool) {
	namespaces, ok := r.namespacesFor(ctx, wiki)
	if !ok {
		return "", false
	}
	prefix, ok := namespaces[namespaceID]
	return prefix, ok
}

// PrefixWithNamespace joins title with its namespace's canonical prefix:
// "" -> title unchanged, else "{prefix}:{title}" (spec §4.2, tested
// scenario: PrefixWithNamespace("Magnus Manske", 2, "enwiki") ==
// "User:Magnus Manske"). Returns false if resolution failed.
func (r *Resolver) PrefixWithNamespace(ctx context.Context, title string, namespaceID int, wiki string) (string, bool) {
	prefix, ok := r.Prefix(ctx, wiki, namespaceID)
	if !ok {
		return "", false
	}
	if prefix == "" {
		return title, true
	}
	return prefix + ":" + title, true
}

// siteinfoResponse is the subset of action=query&meta=siteinfo&siprop=namespaces
// we need.
type siteinfoResponse struct {
	Query struct {
		Namespaces map[string]struct {
			ID           int    `json:"id"`
			CanonicalRaw string `json:"canonical"`
		} `json:"namespaces"`
	} `json:"query"`
}

func httpFetcher(client *http.Client) Fetcher {
	return func(ctx context.Context, wiki string) (map[int]string, error) {
		apiURL := fmt.Sprintf("https://%s/w/api.php?%s", wikiAPIHost(wiki), url.Values{
			"action":  {"query"},
			"meta":    {"siteinfo"},
			"siprop":  {"namespaces"},
			"format":  {"json"},
		}.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("namespace: build request: %w", err)
		}
		req.Header.Set("User-Agent", "baglama2-go/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("namespace: fetch siteinfo for %s: %w", wiki, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("namespace: siteinfo for %s returned HTTP %d", wiki, resp.StatusCode)
		}

		var body siteinfoResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("namespace: decode siteinfo for %s: %w", wiki, err)
		}

		out := make(map[int]string, len(body.Query.Namespaces))
		for _, ns := range body.Query.Namespaces {
			out[ns.ID] = ns.CanonicalRaw
		}
		return out, nil
	}
}

// projectSuffixes lists the wiki-id project suffixes this module knows
// how to turn into a webserver host, with the bare "wiki" suffix last so
// e.g. "wikisource" is tried before "wiki".
var projectSuffixes = []struct {
	suffix, project string
}{
	{"wikisource", "wikisource"},
	{"wiktionary", "wiktionary"},
	{"wikibooks", "wikibooks"},
	{"wikiquote", "wikiquote"},
	{"wikiversity", "wikiversity"},
	{"wikivoyage", "wikivoyage"},
	{"wikinews", "wikinews"},
	{"wikidata", "wikidata"},
	{"wiki", "wikipedia"},
}

// wikiAPIHost maps a wiki id (e.g. "enwiki", "commonswiki") to its API
// host, using the same {language}.{project}.org convention the repo's own
// Site.WikiID derivation reverses. Best-effort: it only needs to be right
// often enough to build a working siteinfo URL, since a bad guess simply
// makes Prefix return false and the caller marks the row done=4.
func wikiAPIHost(wiki string) string {
	if wiki == "commonswiki" {
		return "commons.wikimedia.org"
	}
	for _, ps := range projectSuffixes {
		if lang, ok := cutSuffix(wiki, ps.suffix); ok {
			return lang + "." + ps.project + ".org"
		}
	}
	return wiki + ".org"
}

// cutSuffix reports whether s ends with suffix and, if so, returns the
// remainder.
func cutSuffix(s, suffix string) (string, bool) {
	if len(s) <= len(suffix) || s[len(s)-len(suffix):] != suffix {
		return "", false
	}
	return s[:len(s)-len(suffix)], true
}
