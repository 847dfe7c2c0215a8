package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"xtplay/internal/httputil"
	xlog "xtplay/internal/log"
	"xtplay/internal/metrics"
)

// DefaultTimeout bounds a single strategy attempt.
const DefaultTimeout = 15 * time.Second

// Options configures a Resolver.
type Options struct {
	RelayURL       string   // skipped when empty
	Native         bool     // skip the relay even when configured
	PublicRelays   []string // templates containing {url}
	PublicRelayRPS float64  // 0 disables pacing
	Timeout        time.Duration
	UserAgent      string
}

// Response is a successful upstream response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Strategy string
}

// Resolver tries strategies in order until one returns a 2xx.
type Resolver struct {
	client     *http.Client
	strategies []Strategy
	limiter    *rate.Limiter
	timeout    time.Duration
	userAgent  string
	logger     zerolog.Logger
}

// New creates a Resolver. The strategy list is fixed at construction.
func New(client *http.Client, opts Options) *Resolver {
	var strategies []Strategy
	if opts.RelayURL != "" && !opts.Native {
		strategies = append(strategies, Relay(opts.RelayURL))
	}
	strategies = append(strategies, Direct())
	for _, tmpl := range opts.PublicRelays {
		strategies = append(strategies, Public(tmpl))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if opts.PublicRelayRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.PublicRelayRPS), 1)
	}

	return &Resolver{
		client:     client,
		strategies: strategies,
		limiter:    limiter,
		timeout:    timeout,
		userAgent:  opts.UserAgent,
		logger:     xlog.WithComponent("fetch"),
	}
}

// WithTimeout returns a copy of r using a different per-attempt timeout.
// The copy shares the client and limiter.
func (r *Resolver) WithTimeout(d time.Duration) *Resolver {
	c := *r
	c.timeout = d
	return &c
}

// Strategies returns the configured strategies in priority order.
func (r *Resolver) Strategies() []Strategy {
	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// order puts the cached strategy first and keeps the rest in priority order.
func (r *Resolver) order(cached string) []Strategy {
	if cached == "" {
		return r.strategies
	}
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if s.Name == cached {
			out = append(out, s)
		}
	}
	for _, s := range r.strategies {
		if s.Name != cached {
			out = append(out, s)
		}
	}
	return out
}

// Resolve fetches target, trying each strategy once. On success the
// strategy is stored in cache (which may be nil). When every strategy
// fails the error is a *Failure.
func (r *Resolver) Resolve(ctx context.Context, cache *Cache, target string) (*Response, error) {
	if err := httputil.ValidateURL(target); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	f := &Failure{Host: httputil.Host(target)}
	for _, s := range r.order(cache.Get()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Kind == KindPublic && r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, att := r.attempt(ctx, s, target)
		if resp != nil {
			metrics.FetchAttemptsTotal.WithLabelValues(string(s.Kind), "ok").Inc()
			cache.Set(s.Name)
			r.logger.Debug().Str(xlog.FieldStrategy, s.Name).Int(xlog.FieldStatus, resp.Status).
				Str(xlog.FieldURL, httputil.Redact(target)).Msg("fetch succeeded")
			return resp, nil
		}

		result := "error"
		switch {
		case att.Firewall:
			result = "firewall"
		case att.Status != 0:
			result = "status"
		}
		metrics.FetchAttemptsTotal.WithLabelValues(string(s.Kind), result).Inc()
		r.logger.Debug().Str(xlog.FieldStrategy, s.Name).Int(xlog.FieldStatus, att.Status).
			Bool("firewall", att.Firewall).Str("detail", att.Detail).Msg("fetch attempt failed")

		f.Attempts = append(f.Attempts, att)
		if att.Status != 0 {
			f.LastStatus = att.Status
		}
		if att.Detail != "" {
			f.LastDetail = att.Detail
		}
		if att.Firewall {
			f.Firewall = true
		}
		if att.Suggestion != "" {
			f.Suggestion = att.Suggestion
		}
	}

	return nil, f
}

// attempt performs one request. Exactly one of the results is meaningful:
// a non-nil Response on 2xx, otherwise the Attempt describing the failure.
func (r *Resolver) attempt(ctx context.Context, s Strategy, target string) (*Response, Attempt) {
	att := Attempt{Strategy: s.Name}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	headers := httputil.Headers{}
	if r.userAgent != "" {
		headers["User-Agent"] = r.userAgent
	}
	if s.Kind == KindDirect {
		headers["X-Requested-With"] = "com.nst.iptvsmarterstvbox"
	}

	resp, err := httputil.Get(ctx, r.client, s.URL(target), headers)
	if err != nil {
		att.Detail = describe(err)
		return nil, att
	}

	body, err := httputil.ReadBody(resp)
	if err != nil {
		att.Status = resp.StatusCode
		att.Detail = describe(err)
		return nil, att
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body, Strategy: s.Name}, att
	}

	att.Status = resp.StatusCode
	if resp.StatusCode == StatusFirewall {
		att.Firewall = true
	}
	if re, ok := ParseRelayError(body); ok {
		att.Detail = re.Error
		att.Suggestion = re.Suggestion
		if re.FirewallBlock {
			att.Firewall = true
		}
	}
	return nil, att
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	// url.Error repeats the request URL, which carries credentials.
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}
