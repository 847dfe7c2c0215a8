// Package relay implements the CORS relay: it fetches an Xtream URL on
// behalf of a client that cannot reach the panel directly, posing as a
// known IPTV player.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"xtplay/internal/failure"
	"xtplay/internal/fetch"
	"xtplay/internal/httputil"
	xlog "xtplay/internal/log"
	"xtplay/internal/metrics"
)

// DefaultUpstreamTimeout bounds one upstream request.
const DefaultUpstreamTimeout = 25 * time.Second

// RequestedWith is sent upstream; some panels check it.
const RequestedWith = "com.nst.iptvsmarterstvbox"

// Options configures the relay.
type Options struct {
	UpstreamTimeout time.Duration
	// RateLimit is the number of requests allowed per client IP per minute.
	// Zero disables limiting.
	RateLimit int
	UserAgent string
	Client    *http.Client
}

// Server relays requests to upstream panels.
type Server struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
}

// New creates a relay server.
func New(opts Options) *Server {
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = DefaultUpstreamTimeout
	}
	client := opts.Client
	if client == nil {
		client = httputil.NewClient(opts.UpstreamTimeout + 5*time.Second)
	}
	return &Server{opts: opts, client: client, logger: xlog.WithComponent("relay")}
}

// Handler returns the routes: /relay, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			r.Use(httprate.Limit(s.opts.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "60")
					writeError(w, http.StatusTooManyRequests, fetch.RelayError{
						ProxyError: true,
						Error:      "Too many requests. Please try again later.",
					})
				}),
			))
		}
		r.Get("/relay", s.relay)
	})
	return r
}

// cors sets permissive CORS headers on every response and answers
// preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, X-Requested-With")
		h.Set("Access-Control-Expose-Headers", "X-Proxy-Status, X-Proxy-Host")
		h.Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog logs every request without its query string, which carries
// credentials.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		metrics.RelayRequestsTotal.WithLabelValues(metrics.StatusClass(ww.Status())).Inc()
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int(xlog.FieldStatus, ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, fetch.RelayError{
			ProxyError: true,
			Error:      `Missing "url" query parameter.`,
		})
		return
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		writeError(w, http.StatusBadRequest, fetch.RelayError{
			ProxyError: true,
			Error:      "Invalid URL format.",
		})
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		writeError(w, http.StatusBadRequest, fetch.RelayError{
			ProxyError: true,
			Error:      fmt.Sprintf("Invalid protocol %q. Must be http or https.", u.Scheme),
		})
		return
	}
	label := hostLabel(u)

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.UpstreamTimeout)
	defer cancel()

	headers := httputil.Headers{
		"Accept-Language":  "en-US,en;q=0.9",
		"X-Requested-With": RequestedWith,
	}
	if s.opts.UserAgent != "" {
		headers["User-Agent"] = s.opts.UserAgent
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		headers["Authorization"] = auth
	}

	start := time.Now()
	resp, err := httputil.Get(ctx, s.client, target, headers)
	var body []byte
	if err == nil {
		body, err = httputil.ReadBody(resp)
	}
	metrics.RelayUpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.upstreamError(ctx, w, u, label, err)
		return
	}

	w.Header().Set("X-Proxy-Status", strconv.Itoa(resp.StatusCode))
	w.Header().Set("X-Proxy-Host", u.Hostname())

	if resp.StatusCode == fetch.StatusFirewall {
		s.logger.Warn().Str("host", label).Msg("upstream firewall block")
		writeError(w, fetch.StatusFirewall, fetch.RelayError{
			ProxyError:     true,
			FirewallBlock:  true,
			Error:          fmt.Sprintf("Server Firewall Block (HTTP 456): The IPTV server at %s is actively blocking this connection.", label),
			Suggestion:     failure.New(failure.FirewallBlock, "").Suggestion,
			UpstreamStatus: fetch.StatusFirewall,
		})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func (s *Server) upstreamError(ctx context.Context, w http.ResponseWriter, u *url.URL, label string, err error) {
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		s.logger.Warn().Str("host", label).Msg("upstream timeout")
		writeError(w, http.StatusGatewayTimeout, fetch.RelayError{
			ProxyError: true,
			Error:      fmt.Sprintf("Gateway Timeout: %s did not respond within %s.", label, s.opts.UpstreamTimeout),
			TargetHost: u.Hostname(),
			Suggestion: "The IPTV server may be down, unreachable, or blocking cloud IPs.",
		})
		return
	}

	detail := err.Error()
	var ue *url.Error
	if errors.As(err, &ue) {
		detail = ue.Err.Error()
	}
	s.logger.Warn().Str("host", label).Str("error", detail).Msg("upstream unreachable")
	writeError(w, http.StatusBadGateway, fetch.RelayError{
		ProxyError: true,
		Error:      fmt.Sprintf("Bad Gateway: could not connect to %s.", label),
		Detail:     detail,
		TargetHost: u.Hostname(),
		Suggestion: "Verify the server URL and port. The server may be offline or blocking cloud provider IPs.",
	})
}

func hostLabel(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func writeError(w http.ResponseWriter, status int, body fetch.RelayError) {
	body.OK = false
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe runs the relay on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.UpstreamTimeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down relay: %w", err)
		}
		return nil
	}
}
