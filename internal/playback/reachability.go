package playback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"xtplay/internal/httputil"
	"xtplay/internal/metrics"
)

// HTTPProber probes a URL with a GET request. Any HTTP response, whatever
// its status, counts as reachable.
type HTTPProber struct {
	Client    *http.Client
	URL       string
	UserAgent string
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) error {
	start := time.Now()
	headers := httputil.Headers{}
	if p.UserAgent != "" {
		headers["User-Agent"] = p.UserAgent
	}

	resp, err := httputil.Get(ctx, p.Client, p.URL, headers)
	if err != nil {
		metrics.ProbeDuration.WithLabelValues("unreachable").Observe(time.Since(start).Seconds())
		return fmt.Errorf("probing %s: %w", httputil.Host(p.URL), err)
	}
	resp.Body.Close()
	metrics.ProbeDuration.WithLabelValues("reachable").Observe(time.Since(start).Seconds())
	return nil
}
