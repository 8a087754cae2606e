// Package pageviews is the PageViews Client (spec §4.3): a bounded-
// parallelism HTTP client that turns (server, title, first_day, last_day)
// into a monthly view-count total from the MediaWiki pageviews REST API.
package pageviews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	waveSize       = 10
	defaultTimeout = 60 * time.Second
)

// Request is one article's lookup: the server to query, its title, the
// inclusive day range (YYYYMMDD), and the view row the result is written
// back to.
type Request struct {
	Server   string
	Title    string
	FirstDay string
	LastDay  string
	ViewID   uint64
}

// Result is the outcome of one Request. Fetch never sets Err: a 404, an
// empty items[] list, or a failure that survived retry all yield Views=0
// (spec §4.3); only context cancellation is reported, as Fetch's own
// error.
type Result struct {
	ViewID uint64
	Views  uint64
	Err    error
}

// Client issues pageviews REST requests in waves of waveSize concurrent
// requests, waiting for the whole wave before starting the next (spec
// §4.3 concurrency model).
type Client struct {
	http      *http.Client
	userAgent string
}

// New builds a Client. httpClient may be nil to use a default with the
// spec's 60-second per-request timeout; tests substitute one pointed at
// an httptest.Server.
func New(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if userAgent == "" {
		userAgent = "baglama2-go/1.0"
	}
	return &Client{http: httpClient, userAgent: userAgent}
}

// Fetch resolves every request in reqs, waveSize at a time. Context
// cancellation propagates to in-flight requests within the current wave;
// remaining waves are not started. The returned slice always has one
// Result per input Request, in input order.
func (c *Client) Fetch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	for start := 0; start < len(reqs); start += waveSize {
		end := start + waveSize
		if end > len(reqs) {
			end = len(reqs)
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := c.runWave(ctx, reqs[start:end], results[start:end]); err != nil {
			return results, err
		}
	}
	return results, nil
}

// runWave dispatches one wave of requests concurrently and blocks until
// all of them finish or ctx is cancelled.
func (c *Client) runWave(ctx context.Context, reqs []Request, out []Result) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range reqs {
		i := i
		req := reqs[i]
		g.Go(func() error {
			views, err := c.fetchWithRetry(gctx, req)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				// Transport failure survived retry: per spec §4.3 this is
				// still not an API error, the row resolves to zero views.
				out[i] = Result{ViewID: req.ViewID, Views: 0}
				return nil
			}
			out[i] = Result{ViewID: req.ViewID, Views: views}
			return nil
		})
	}
	return g.Wait()
}

// fetchWithRetry performs a single pageviews lookup, retrying transient
// transport errors at the request level (spec §4.3: "transport-level
// failures are retried at the batch level" — here scoped to the single
// request, since a wave is the unit of batching).
func (c *Client) fetchWithRetry(ctx context.Context, req Request) (uint64, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		views, ok, err := c.fetchOnce(ctx, req)
		if err == nil {
			if !ok {
				return 0, nil
			}
			return views, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	return 0, lastErr
}

type pageviewsResponse struct {
	Items []struct {
		Views uint64 `json:"views"`
	} `json:"items"`
}

// fetchOnce issues the per-article request. ok=false with err=nil means a
// definitive "no data" answer (HTTP 404); err non-nil means a transport or
// server-side failure worth retrying.
func (c *Client) fetchOnce(ctx context.Context, req Request) (views uint64, ok bool, err error) {
	endpoint := fmt.Sprintf(
		"https://wikimedia.org/api/rest_v1/metrics/pageviews/per-article/%s/all-access/user/%s/daily/%s/%s",
		req.Server, url.PathEscape(req.Title), req.FirstDay, req.LastDay,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, fmt.Errorf("pageviews: build request for view %s: %w", strconv.FormatUint(req.ViewID, 10), err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, false, fmt.Errorf("pageviews: request view %d: %w", req.ViewID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("pageviews: view %d returned HTTP %d", req.ViewID, resp.StatusCode)
	}

	var body pageviewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, fmt.Errorf("pageviews: decode response for view %d: %w", req.ViewID, err)
	}

	var total uint64
	for _, item := range body.Items {
		total += item.Views
	}
	return total, true, nil
}
