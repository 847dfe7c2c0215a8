// Package catalog talks to the Xtream player_api: login, categories, streams
// and series details.
//
// Only Authenticate reports errors. Read operations degrade to an empty
// result (or the sample catalog) and log the cause, so a flaky panel never
// breaks browsing.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"xtplay/internal/failure"
	"xtplay/internal/fetch"
	"xtplay/internal/httputil"
	xlog "xtplay/internal/log"
	"xtplay/internal/media"
	"xtplay/internal/session"
	"xtplay/internal/xtream"
)

// DefaultAuthTimeout bounds each login attempt.
const DefaultAuthTimeout = 20 * time.Second

// Options configures a Service.
type Options struct {
	// LenientAuth treats a JSON login response without user_info as success.
	LenientAuth bool
	AuthTimeout time.Duration
}

// Service is the catalog client for one session.
type Service struct {
	sess        *session.Session
	resolver    *fetch.Resolver
	auth        *fetch.Resolver
	lenientAuth bool
	logger      zerolog.Logger
}

// New creates a Service reading through resolver.
func New(sess *session.Session, resolver *fetch.Resolver, opts Options) *Service {
	timeout := opts.AuthTimeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	return &Service{
		sess:        sess,
		resolver:    resolver,
		auth:        resolver.WithTimeout(timeout),
		lenientAuth: opts.LenientAuth,
		logger:      xlog.WithComponent("catalog"),
	}
}

// Session returns the session the service reads from.
func (s *Service) Session() *session.Session { return s.sess }

// Authenticate logs in. It returns (false, nil) when the panel answered but
// refused the credentials; errors are classified with package failure.
func (s *Service) Authenticate(ctx context.Context) (bool, error) {
	gen := s.sess.Generation()
	if s.sess.IsDemo() {
		s.sess.MarkAuthenticated(gen, &xtream.UserInfo{Username: "demo", Auth: 1, Status: "Active"}, nil)
		return true, nil
	}

	creds := s.sess.Credentials()
	resp, err := s.auth.Resolve(ctx, s.sess.StrategyCache(), xtream.PlayerAPIURL(creds, "", nil))
	if gen != s.sess.Generation() {
		return false, session.ErrReset
	}
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			return false, failure.Wrap(failure.TransportFailure, "login request failed", err)
		}
		return false, fmt.Errorf("login: %w", err)
	}

	if err := relayFailure(resp.Body, creds.BaseURL); err != nil {
		return false, err
	}

	var ar xtream.AuthResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		return false, malformed("login response is not JSON", resp.Body, err)
	}

	if ar.UserInfo == nil {
		if ar.Error != "" {
			return false, failure.New(failure.TransportFailure, "portal error: "+ar.Error)
		}
		if !s.lenientAuth {
			return false, malformed("login response has no user_info", resp.Body, nil)
		}
		s.logger.Warn().Msg("login response has no user_info, accepting it (lenient_auth)")
		if !s.sess.MarkAuthenticated(gen, nil, ar.ServerInfo) {
			return false, session.ErrReset
		}
		return true, nil
	}

	if !ar.UserInfo.Active() {
		s.logger.Info().Str("status", ar.UserInfo.Status).Int64("auth", int64(ar.UserInfo.Auth)).Msg("credentials refused")
		return false, nil
	}

	if !s.sess.MarkAuthenticated(gen, ar.UserInfo, ar.ServerInfo) {
		return false, session.ErrReset
	}
	s.logger.Info().Str("username", ar.UserInfo.Username).Str("exp_date", ar.UserInfo.ExpDate.String()).
		Str(xlog.FieldStrategy, resp.Strategy).Msg("authenticated")
	return true, nil
}

// AccountInfo returns the raw login response, or nil when it cannot be fetched.
func (s *Service) AccountInfo(ctx context.Context) *xtream.AuthResponse {
	if s.sess.IsDemo() {
		return nil
	}
	var ar xtream.AuthResponse
	if err := s.getJSON(ctx, "", nil, &ar); err != nil {
		s.logger.Warn().Err(err).Msg("account info unavailable")
		return nil
	}
	return &ar
}

// Categories lists the categories of type t. Failures and empty answers
// yield the sample categories.
func (s *Service) Categories(ctx context.Context, t media.ContentType) []media.Category {
	if s.sess.IsDemo() {
		return sampleCategories[t]
	}

	var raw []xtream.Category
	if err := s.getJSON(ctx, categoriesAction(t), nil, &raw); err != nil {
		s.logger.Warn().Err(err).Stringer("type", t).Msg("categories unavailable, using sample data")
		return sampleCategories[t]
	}
	if len(raw) == 0 {
		s.logger.Warn().Stringer("type", t).Msg("empty categories response, using sample data")
		return sampleCategories[t]
	}

	out := make([]media.Category, 0, len(raw))
	for _, c := range raw {
		out = append(out, media.Category{ID: c.CategoryID.String(), Name: c.CategoryName})
	}
	return out
}

// Streams lists items of type t in categoryID; "" or "All" means every
// category. Failures and non-array answers yield an empty list.
func (s *Service) Streams(ctx context.Context, t media.ContentType, categoryID string) []media.Item {
	if s.sess.IsDemo() {
		return sampleStreams(t, categoryID)
	}

	var params url.Values
	if !allCategories(categoryID) {
		params = url.Values{xtream.ParamCategoryID: {categoryID}}
	}

	var raw []xtream.Stream
	if err := s.getJSON(ctx, streamsAction(t), params, &raw); err != nil {
		s.logger.Warn().Err(err).Stringer("type", t).Str("category", categoryID).Msg("streams unavailable")
		return []media.Item{}
	}

	out := make([]media.Item, 0, len(raw))
	for _, r := range raw {
		it := media.Item{
			Type:       t,
			Name:       r.Name,
			Rating:     float64(r.Rating),
			CategoryID: r.CategoryID.String(),
			Extension:  r.ContainerExtension,
		}
		if t == media.Series {
			it.ID = int64(r.SeriesID)
			it.Icon = r.Cover
		} else {
			it.ID = int64(r.StreamID)
			it.Icon = r.StreamIcon
		}
		if it.ID <= 0 {
			continue
		}
		out = append(out, it)
	}
	return out
}

// SeriesInfo returns the seasons of a series, ordered numerically. Failures
// yield the sample detail when one exists, else an empty detail.
func (s *Service) SeriesInfo(ctx context.Context, seriesID int64) media.SeriesDetail {
	if s.sess.IsDemo() {
		if d, ok := sampleSeries[seriesID]; ok {
			return d
		}
		return media.SeriesDetail{Info: map[string]any{"name": "Unknown"}}
	}

	var raw xtream.SeriesInfo
	params := url.Values{xtream.ParamSeriesID: {strconv.FormatInt(seriesID, 10)}}
	if err := s.getJSON(ctx, xtream.ActionSeriesInfo, params, &raw); err != nil {
		s.logger.Warn().Err(err).Int64("series_id", seriesID).Msg("series info unavailable")
		if d, ok := sampleSeries[seriesID]; ok {
			return d
		}
		return media.SeriesDetail{Info: map[string]any{}}
	}
	return convertSeries(raw)
}

// Overview counts the categories of every content type concurrently.
func (s *Service) Overview(ctx context.Context) map[media.ContentType]int {
	types := []media.ContentType{media.Live, media.Movie, media.Series}
	counts := make([]int, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			counts[i] = len(s.Categories(gctx, t))
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[media.ContentType]int, len(types))
	for i, t := range types {
		out[t] = counts[i]
	}
	return out
}

func convertSeries(raw xtream.SeriesInfo) media.SeriesDetail {
	d := media.SeriesDetail{Info: raw.Info}
	if d.Info == nil {
		d.Info = map[string]any{}
	}
	for _, key := range raw.Episodes.SortedSeasonKeys() {
		num, _ := strconv.Atoi(key)
		season := media.Season{Number: num, Key: key}
		for _, e := range raw.Episodes[key] {
			id, err := strconv.ParseInt(e.ID.String(), 10, 64)
			if err != nil {
				continue
			}
			season.Episodes = append(season.Episodes, media.Episode{
				ID:        id,
				Number:    int(e.EpisodeNum),
				Title:     e.Title,
				Extension: e.ContainerExtension,
				Duration:  e.Info.Duration,
			})
		}
		d.Seasons = append(d.Seasons, season)
	}
	return d
}

// getJSON fetches a player_api action and decodes it into v. Results of a
// request issued before a session reset are discarded.
func (s *Service) getJSON(ctx context.Context, action string, params url.Values, v any) error {
	gen := s.sess.Generation()
	creds := s.sess.Credentials()

	resp, err := s.resolver.Resolve(ctx, s.sess.StrategyCache(), xtream.PlayerAPIURL(creds, action, params))
	if gen != s.sess.Generation() {
		return session.ErrReset
	}
	if err != nil {
		return err
	}
	if err := relayFailure(resp.Body, creds.BaseURL); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return malformed(action+" response is not the expected JSON", resp.Body, err)
	}
	return nil
}

// relayFailure reports a relay error payload delivered with a 2xx status.
func relayFailure(body []byte, baseURL string) error {
	re, ok := fetch.ParseRelayError(body)
	if !ok {
		return nil
	}
	if re.FirewallBlock {
		return failure.Firewall(httputil.Host(baseURL), re.Suggestion)
	}
	e := failure.New(failure.TransportFailure, "relay could not reach the portal: "+re.Error)
	if re.Suggestion != "" {
		e.Suggestion = re.Suggestion
	}
	return e
}

func malformed(msg string, body []byte, err error) error {
	return failure.Wrap(failure.MalformedResponse, fmt.Sprintf("%s (%s)", msg, describeBody(body)), err)
}

// describeBody summarises an unexpected response for diagnostics. HTML error
// pages are reduced to their title.
func describeBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "empty body"
	}
	if trimmed[0] == '<' {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed)); err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				return "HTML page: " + title
			}
		}
		return "HTML page"
	}
	const limit = 80
	if len(trimmed) > limit {
		return string(trimmed[:limit]) + "..."
	}
	return string(trimmed)
}

func allCategories(id string) bool {
	return id == "" || strings.EqualFold(id, "all")
}

func categoriesAction(t media.ContentType) string {
	switch t {
	case media.Movie:
		return xtream.ActionVODCategories
	case media.Series:
		return xtream.ActionSeriesCategories
	default:
		return xtream.ActionLiveCategories
	}
}

func streamsAction(t media.ContentType) string {
	switch t {
	case media.Movie:
		return xtream.ActionVODStreams
	case media.Series:
		return xtream.ActionSeries
	default:
		return xtream.ActionLiveStreams
	}
}
