package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtplay/internal/failure"
	"xtplay/internal/httputil"
)

// countingServer answers every request with status and body and counts hits.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newResolver(opts Options) *Resolver {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	return New(httputil.NewClient(5*time.Second), opts)
}

func TestStrategyURL(t *testing.T) {
	target := "http://panel.example:8080/player_api.php?username=bob&password=x"

	assert.Equal(t, target, Direct().URL(target))
	assert.Equal(t,
		"http://relay.local/relay?url=http%3A%2F%2Fpanel.example%3A8080%2Fplayer_api.php%3Fusername%3Dbob%26password%3Dx",
		Relay("http://relay.local/relay").URL(target))
	assert.Equal(t,
		"https://corsproxy.io/?http%3A%2F%2Fpanel.example%3A8080%2Fplayer_api.php%3Fusername%3Dbob%26password%3Dx",
		Public("https://corsproxy.io/?{url}").URL(target))
	assert.Equal(t, "public:api.allorigins.win", Public("https://api.allorigins.win/raw?url={url}").Name)
}

func TestStrategyOrder(t *testing.T) {
	r := newResolver(Options{
		RelayURL:     "http://relay.local/relay",
		PublicRelays: []string{"https://a.example/?{url}", "https://b.example/?{url}"},
	})
	names := func(ss []Strategy) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{"relay", "direct", "public:a.example", "public:b.example"}, names(r.order("")))
	assert.Equal(t, []string{"public:b.example", "relay", "direct", "public:a.example"}, names(r.order("public:b.example")))
	assert.Equal(t, []string{"relay", "direct", "public:a.example", "public:b.example"}, names(r.order("gone")))

	native := newResolver(Options{RelayURL: "http://relay.local/relay", Native: true})
	assert.Equal(t, []string{"direct"}, names(native.Strategies()))
}

func TestResolveDirectSuccessIsCached(t *testing.T) {
	upstream, _ := countingServer(t, http.StatusOK, `{"ok":true}`)

	var cache Cache
	resp, err := newResolver(Options{}).Resolve(context.Background(), &cache, upstream.URL+"/player_api.php")
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Strategy)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "direct", cache.Get())
}

func TestResolveFallsThroughRelayToDirect(t *testing.T) {
	relay, relayHits := countingServer(t, http.StatusBadGateway,
		`{"ok":false,"proxyError":true,"firewallBlock":false,"error":"connection refused"}`)
	upstream, upstreamHits := countingServer(t, http.StatusOK, `[]`)

	var cache Cache
	resp, err := newResolver(Options{RelayURL: relay.URL + "/relay"}).
		Resolve(context.Background(), &cache, upstream.URL+"/player_api.php")
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Strategy)
	assert.EqualValues(t, 1, relayHits.Load())
	assert.EqualValues(t, 1, upstreamHits.Load())
	assert.Equal(t, "direct", cache.Get())
}

func TestResolveStickyStrategy(t *testing.T) {
	relay, relayHits := countingServer(t, http.StatusOK, `[]`)
	upstream, upstreamHits := countingServer(t, http.StatusOK, `[]`)

	r := newResolver(Options{RelayURL: relay.URL + "/relay"})
	cache := &Cache{}
	cache.Set("direct")

	for i := 0; i < 3; i++ {
		resp, err := r.Resolve(context.Background(), cache, upstream.URL)
		require.NoError(t, err)
		assert.Equal(t, "direct", resp.Strategy)
	}
	assert.EqualValues(t, 0, relayHits.Load(), "cached direct strategy should be tried first")
	assert.EqualValues(t, 3, upstreamHits.Load())

	cache.Reset()
	resp, err := r.Resolve(context.Background(), cache, upstream.URL)
	require.NoError(t, err)
	assert.Equal(t, "relay", resp.Strategy, "after reset the priority order applies")
	assert.EqualValues(t, 1, relayHits.Load())
}

func TestResolvePublicRelay(t *testing.T) {
	down, _ := countingServer(t, http.StatusServiceUnavailable, "")
	public, publicHits := countingServer(t, http.StatusOK, `{"user_info":{}}`)

	var cache Cache
	r := newResolver(Options{PublicRelays: []string{public.URL + "/raw?url={url}"}, PublicRelayRPS: 100})
	resp, err := r.Resolve(context.Background(), &cache, down.URL+"/player_api.php")
	require.NoError(t, err)
	assert.Equal(t, KindPublic, r.Strategies()[1].Kind)
	assert.Equal(t, r.Strategies()[1].Name, resp.Strategy)
	assert.Equal(t, resp.Strategy, cache.Get())
	assert.EqualValues(t, 1, publicHits.Load())
}

func TestResolveFirewallBlock(t *testing.T) {
	upstream, _ := countingServer(t, StatusFirewall, "blocked")
	relay, _ := countingServer(t, StatusFirewall,
		`{"ok":false,"proxyError":true,"firewallBlock":true,"error":"Server returned 456","suggestion":"Try another port."}`)

	var cache Cache
	_, err := newResolver(Options{RelayURL: relay.URL}).Resolve(context.Background(), &cache, upstream.URL+"/player_api.php")
	require.Error(t, err)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.True(t, f.Firewall)
	assert.Equal(t, StatusFirewall, f.LastStatus)
	assert.Len(t, f.Attempts, 2)

	assert.Equal(t, failure.FirewallBlock, failure.KindOf(err))
	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, httputil.Host(upstream.URL), fe.Host, "firewall failure names the upstream host")
	assert.Equal(t, "Try another port.", fe.Suggestion)
	assert.Empty(t, cache.Get(), "nothing succeeded, nothing cached")
}

func TestResolveExhaustedReportsLastStatus(t *testing.T) {
	upstream, _ := countingServer(t, http.StatusForbidden, "")
	pub, _ := countingServer(t, http.StatusBadGateway, `{"proxyError":true,"error":"upstream reset"}`)

	_, err := newResolver(Options{PublicRelays: []string{pub.URL + "/?{url}"}}).
		Resolve(context.Background(), nil, upstream.URL)
	require.Error(t, err)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, http.StatusBadGateway, f.LastStatus)
	assert.Equal(t, "upstream reset", f.LastDetail)
	assert.Equal(t, "all fetch strategies failed (last HTTP status: 502) (upstream reset)", err.Error())
	assert.Equal(t, failure.TransportFailure, failure.KindOf(err))
}

func TestResolvePerAttemptTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	fast, _ := countingServer(t, http.StatusOK, "ok")

	r := newResolver(Options{RelayURL: slow.URL, Timeout: 100 * time.Millisecond})
	start := time.Now()
	resp, err := r.Resolve(context.Background(), nil, fast.URL)
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Strategy)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveCancelledContext(t *testing.T) {
	upstream, hits := countingServer(t, http.StatusOK, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newResolver(Options{}).Resolve(ctx, nil, upstream.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, hits.Load())
}

func TestResolveRejectsInvalidTarget(t *testing.T) {
	_, err := newResolver(Options{}).Resolve(context.Background(), nil, "javascript:alert(1)")
	assert.Error(t, err)
}

func TestParseRelayError(t *testing.T) {
	re, ok := ParseRelayError([]byte(`{"ok":false,"proxyError":true,"firewallBlock":true,"error":"x"}`))
	require.True(t, ok)
	assert.True(t, re.FirewallBlock)

	_, ok = ParseRelayError([]byte(`{"user_info":{"auth":1}}`))
	assert.False(t, ok)
	_, ok = ParseRelayError([]byte(`<html></html>`))
	assert.False(t, ok)
}
