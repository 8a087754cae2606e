package pageviews

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// redirectClient returns a client that sends every request to srv,
// whatever host its URL names, so the client's fixed pageviews endpoint
// is answered by the test server.
func redirectClient(srv *httptest.Server) *http.Client {
	target, _ := url.Parse(srv.URL)
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		r = r.Clone(r.Context())
		r.URL.Scheme = target.Scheme
		r.URL.Host = target.Host
		return srv.Client().Transport.RoundTrip(r)
	})}
}

func TestFetchSumsItemsViews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"views":3},{"views":4}]}`))
	}))
	defer srv.Close()

	c := New(redirectClient(srv), "")
	reqs := []Request{{Server: "enwiki", Title: "Example", FirstDay: "20200101", LastDay: "20200131", ViewID: 1}}

	results, err := c.Fetch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(7), results[0].Views)
	assert.Equal(t, uint64(1), results[0].ViewID)
}

func TestFetchNotFoundYieldsZeroNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(redirectClient(srv), "")
	reqs := []Request{{Server: "enwiki", Title: "Missing", FirstDay: "20200101", LastDay: "20200131", ViewID: 9}}

	results, err := c.Fetch(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), results[0].Views)
}

func TestFetchDispatchesInWavesOfTen(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"views":1}]}`))
	}))
	defer srv.Close()

	c := New(redirectClient(srv), "")
	reqs := make([]Request, 25)
	for i := range reqs {
		reqs[i] = Request{Server: "enwiki", Title: "X", FirstDay: "20200101", LastDay: "20200131", ViewID: uint64(i)}
	}

	results, err := c.Fetch(context.Background(), reqs)
	require.NoError(t, err)
	assert.Len(t, results, 25)
	assert.LessOrEqual(t, maxInFlight.Load(), int64(waveSize))
}

func TestFetchPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(redirectClient(srv), "")
	reqs := []Request{{Server: "enwiki", Title: "X", FirstDay: "20200101", LastDay: "20200131", ViewID: 1}}

	_, err := c.Fetch(ctx, reqs)
	assert.Error(t, err)
}
