package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"xtplay/internal/failure"
	"xtplay/internal/httputil"
	xlog "xtplay/internal/log"
	"xtplay/internal/metrics"
)

// Default timeouts.
const (
	DefaultLiveTimeout  = 15 * time.Second
	DefaultVODTimeout   = 10 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("playback session closed")

// State is the playback session state.
type State int

const (
	StateIdle State = iota
	StateProbing
	StatePlaying
	StateExhausted
	StateOffline
	StateUnreachable
	StateMixedContentBlocked
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StatePlaying:
		return "playing"
	case StateExhausted:
		return "exhausted"
	case StateOffline:
		return "offline"
	case StateUnreachable:
		return "unreachable"
	case StateMixedContentBlocked:
		return "mixed_content_blocked"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition happens without Retry.
func (s State) Terminal() bool {
	switch s {
	case StateOffline, StateUnreachable, StateMixedContentBlocked, StateClosed:
		return true
	default:
		return false
	}
}

// Transition describes a state change, for status display.
type Transition struct {
	SessionID string
	From, To  State
	Candidate int // index into Request.Candidates, -1 when not applicable
	Total     int
	URL       string
	Err       error
}

// Options configures an Engine.
type Options struct {
	LiveTimeout  time.Duration
	VODTimeout   time.Duration
	ProbeTimeout time.Duration
	// SecureContext refuses plain-http candidates.
	SecureContext bool
	// OnTransition, if set, is called after every state change. It must not
	// call back into the session.
	OnTransition func(Transition)
}

// Engine starts playback sessions.
type Engine struct {
	newPipeline Factory
	prober      Prober
	opts        Options
}

// NewEngine creates an Engine. prober may be nil, in which case exhaustion
// is always reported as Offline.
func NewEngine(factory Factory, prober Prober, opts Options) *Engine {
	if opts.LiveTimeout <= 0 {
		opts.LiveTimeout = DefaultLiveTimeout
	}
	if opts.VODTimeout <= 0 {
		opts.VODTimeout = DefaultVODTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Engine{newPipeline: factory, prober: prober, opts: opts}
}

// Request describes what to play.
type Request struct {
	Title         string
	Candidates    []string
	Live          bool
	Episodic      bool
	StartPosition float64
	// OnNextEpisode is called when an episodic item plays to its end.
	OnNextEpisode func()
}

// Result is the final state of a session.
type Result struct {
	State       State
	NextEpisode bool
	Position    float64
	Duration    float64
	Err         error
}

// Start creates a session and probes candidates until one plays or all
// fail. It blocks until the session is Playing or terminal. The returned
// error is the classified failure for terminal states; the session is
// returned in every case so it can be retried or inspected.
func (e *Engine) Start(ctx context.Context, req Request) (*Session, error) {
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("no candidate URLs")
	}

	id := uuid.NewString()
	s := &Session{
		ID:      id,
		engine:  e,
		req:     req,
		logger:  xlog.WithComponent("playback").With().Str(xlog.FieldSessionID, id).Logger(),
		quality: AutoQuality,
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	err := s.run(s.ctx, 0)
	return s, err
}

// Session is one playback of one item.
type Session struct {
	ID string

	engine *Engine
	req    Request
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	index       int
	loaded      bool
	levels      []QualityLevel
	quality     int
	manual      bool
	lastErr     error
	position    float64
	duration    float64
	pipeline    Pipeline
	attempt     uint64
	nextEpisode bool
	closed      bool
	done        chan struct{}
	finished    bool
}

// Status is a snapshot of the session.
type Status struct {
	State     State
	Candidate int
	URL       string
	Loaded    bool
	Levels    []QualityLevel
	Quality   int
	Manual    bool
	Position  float64
	Duration  float64
	LastErr   error
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     s.state,
		Candidate: s.index,
		Loaded:    s.loaded,
		Levels:    append([]QualityLevel(nil), s.levels...),
		Quality:   s.quality,
		Manual:    s.manual,
		Position:  s.position,
		Duration:  s.duration,
		LastErr:   s.lastErr,
	}
	if s.index < len(s.req.Candidates) {
		st.URL = s.req.Candidates[s.index]
	}
	return st
}

// run probes candidates from index from onwards.
func (s *Session) run(ctx context.Context, from int) error {
	total := len(s.req.Candidates)

	if from == 0 && s.engine.opts.SecureContext && !httputil.IsSecure(s.req.Candidates[0]) {
		err := failure.New(failure.MixedContentBlocked,
			fmt.Sprintf("refusing insecure stream %s in a secure context", httputil.Host(s.req.Candidates[0])))
		s.setLastErr(err)
		s.transition(StateMixedContentBlocked, 0, err)
		s.finish("mixed_content")
		return err
	}

	for i := from; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return s.abort(err)
		}
		s.transition(StateProbing, i, nil)

		p, events, levels, err := s.tryCandidate(ctx, i)
		if err == nil {
			return s.play(ctx, i, p, events, levels)
		}
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return s.abort(err)
		}

		s.logger.Info().Int(xlog.FieldCandidate, i).Str(xlog.FieldURL, httputil.Redact(s.req.Candidates[i])).
			Err(err).Msg("candidate failed")
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}

	s.transition(StateExhausted, -1, nil)
	return s.classifyExhausted(ctx)
}

// tryCandidate loads candidate i and waits for it to become ready. On any
// failure the pipeline is closed before returning.
func (s *Session) tryCandidate(ctx context.Context, i int) (Pipeline, <-chan Event, []QualityLevel, error) {
	timeout := s.engine.opts.VODTimeout
	if s.req.Live {
		timeout = s.engine.opts.LiveTimeout
	}

	s.mu.Lock()
	start := s.req.StartPosition
	if s.position > 0 && !s.req.Live {
		start = s.position
	}
	s.mu.Unlock()

	p := s.engine.newPipeline()
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, err := p.Load(actx, Source{
		URL:           s.req.Candidates[i],
		Title:         s.req.Title,
		Live:          s.req.Live,
		StartPosition: start,
	})
	if err != nil {
		p.Close()
		metrics.PlaybackAttemptsTotal.WithLabelValues("load_error").Inc()
		return nil, nil, nil, fmt.Errorf("loading: %w", err)
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.Close()
				metrics.PlaybackAttemptsTotal.WithLabelValues("fatal").Inc()
				return nil, nil, nil, errors.New("pipeline stopped before playback started")
			}
			switch ev.Kind {
			case EventReady:
				metrics.PlaybackAttemptsTotal.WithLabelValues("ready").Inc()
				return p, events, ev.Levels, nil
			case EventFatal:
				p.Close()
				metrics.PlaybackAttemptsTotal.WithLabelValues("fatal").Inc()
				if ev.Err == nil {
					ev.Err = errors.New("fatal media error")
				}
				return nil, nil, nil, ev.Err
			case EventEnded, EventClosed:
				p.Close()
				metrics.PlaybackAttemptsTotal.WithLabelValues("fatal").Inc()
				return nil, nil, nil, fmt.Errorf("pipeline %s before playback started", ev.Kind)
			}
		case <-actx.Done():
			p.Close()
			if ctx.Err() != nil {
				return nil, nil, nil, ctx.Err()
			}
			metrics.PlaybackAttemptsTotal.WithLabelValues("timeout").Inc()
			return nil, nil, nil, fmt.Errorf("no playback within %s", timeout)
		}
	}
}

// play installs a ready pipeline and starts watching it.
func (s *Session) play(ctx context.Context, i int, p Pipeline, events <-chan Event, levels []QualityLevel) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.Close()
		return ErrClosed
	}
	s.pipeline = p
	s.attempt++
	gen := s.attempt
	s.loaded = true
	s.levels = levels
	reapply := s.manual && s.quality >= 0 && s.quality < len(levels)
	if !reapply {
		s.quality = AutoQuality
		s.manual = false
	}
	quality := s.quality
	s.mu.Unlock()

	if reapply {
		if err := p.SelectQuality(quality); err != nil {
			s.logger.Warn().Err(err).Int("quality", quality).Msg("could not restore manual quality")
		}
	}

	s.transition(StatePlaying, i, nil)
	s.logger.Info().Int(xlog.FieldCandidate, i).Int("levels", len(levels)).Msg("playing")

	s.wg.Add(1)
	go s.watch(ctx, gen, events)
	return nil
}

// watch consumes events of the playing pipeline until it stops.
func (s *Session) watch(ctx context.Context, gen uint64, events <-chan Event) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				ev = Event{Kind: EventClosed}
			}
			if s.handle(ctx, gen, ev) {
				return
			}
		}
	}
}

// handle applies one event from the playing pipeline. It reports whether
// the watcher should stop.
func (s *Session) handle(ctx context.Context, gen uint64, ev Event) bool {
	s.mu.Lock()
	if gen != s.attempt || s.closed {
		s.mu.Unlock()
		return true
	}

	switch ev.Kind {
	case EventPosition:
		s.position = ev.Position
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
		s.mu.Unlock()
		return false

	case EventReady:
		if len(ev.Levels) > 0 {
			s.levels = ev.Levels
		}
		s.mu.Unlock()
		return false

	case EventFatal:
		p := s.pipeline
		s.pipeline = nil
		s.loaded = false
		s.lastErr = ev.Err
		next := s.index + 1
		s.mu.Unlock()

		s.logger.Warn().Err(ev.Err).Int(xlog.FieldCandidate, next-1).Msg("fatal error while playing, trying next candidate")
		if p != nil {
			p.Close()
		}
		_ = s.run(ctx, next)
		return true

	default: // ended or closed
		ended := ev.Kind == EventEnded
		p := s.pipeline
		s.pipeline = nil
		s.closed = true
		if ended && s.req.Episodic {
			s.nextEpisode = true
		}
		notify := ended && s.req.Episodic && s.req.OnNextEpisode != nil
		s.mu.Unlock()

		if p != nil {
			p.Close()
		}
		s.transition(StateClosed, -1, nil)
		if notify {
			s.req.OnNextEpisode()
		}
		outcome := "closed"
		if ended {
			outcome = "ended"
		}
		s.finish(outcome)
		return true
	}
}

// classifyExhausted runs the single reachability probe and settles on
// Offline or Unreachable.
func (s *Session) classifyExhausted(ctx context.Context) error {
	s.mu.Lock()
	last := s.lastErr
	s.mu.Unlock()

	var probeErr error
	if s.engine.prober != nil {
		pctx, cancel := context.WithTimeout(ctx, s.engine.opts.ProbeTimeout)
		probeErr = s.engine.prober.Probe(pctx)
		cancel()
	}
	if ctx.Err() != nil {
		return s.abort(ctx.Err())
	}

	total := len(s.req.Candidates)
	if probeErr != nil {
		err := failure.Wrap(failure.ServerUnreachable, "server unreachable", probeErr)
		s.setLastErr(err)
		s.transition(StateUnreachable, -1, err)
		s.finish("unreachable")
		return err
	}

	err := failure.Wrap(failure.StreamOffline,
		fmt.Sprintf("stream offline: the server answers but none of %d stream URLs played", total), last)
	s.setLastErr(err)
	s.transition(StateOffline, -1, err)
	s.finish("offline")
	return err
}

// abort ends the session because ctx was cancelled or it was closed.
func (s *Session) abort(cause error) error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		s.transition(StateClosed, -1, cause)
	}
	s.finish("cancelled")
	if errors.Is(cause, ErrClosed) {
		return ErrClosed
	}
	return cause
}

func (s *Session) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// transition records the new state and notifies the observer. idx < 0
// keeps the current candidate index. Once closed only StateClosed is
// recorded.
func (s *Session) transition(to State, idx int, err error) {
	s.mu.Lock()
	if s.closed && to != StateClosed {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = to
	if idx >= 0 {
		s.index = idx
	}
	t := Transition{
		SessionID: s.ID,
		From:      from,
		To:        to,
		Candidate: s.index,
		Total:     len(s.req.Candidates),
		Err:       err,
	}
	if s.index < len(s.req.Candidates) {
		t.URL = s.req.Candidates[s.index]
	}
	s.mu.Unlock()

	s.logger.Debug().Str(xlog.FieldOldState, from.String()).Str(xlog.FieldNewState, to.String()).
		Int(xlog.FieldCandidate, t.Candidate).Msg("transition")
	if cb := s.engine.opts.OnTransition; cb != nil {
		cb(t)
	}
}

func (s *Session) finish(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	close(s.done)
	metrics.PlaybackOutcomesTotal.WithLabelValues(outcome).Inc()
}

// SelectQuality switches to level index, or AutoQuality. A manual choice
// sticks for the rest of the session, including after a fallback to
// another candidate that exposes the same level.
func (s *Session) SelectQuality(index int) error {
	s.mu.Lock()
	if s.state != StatePlaying || s.pipeline == nil {
		s.mu.Unlock()
		return fmt.Errorf("not playing")
	}
	if index < AutoQuality || index >= len(s.levels) {
		s.mu.Unlock()
		return fmt.Errorf("quality level %d out of range (0-%d)", index, len(s.levels)-1)
	}
	p := s.pipeline
	s.mu.Unlock()

	if err := p.SelectQuality(index); err != nil {
		return fmt.Errorf("selecting quality: %w", err)
	}

	s.mu.Lock()
	s.quality = index
	s.manual = index != AutoQuality
	s.mu.Unlock()
	return nil
}

// Retry restarts probing at the first candidate. Only Offline and
// Unreachable sessions can be retried.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateOffline && s.state != StateUnreachable {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot retry from state %s", st)
	}
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.finished = false
	s.closed = false
	s.lastErr = nil
	s.loaded = false
	runCtx := s.ctx
	s.mu.Unlock()

	return s.run(runCtx, 0)
}

// Wait blocks until the session reaches a terminal state or ctx is done.
func (s *Session) Wait(ctx context.Context) Result {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return Result{State: s.Status().State, Err: ctx.Err()}
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	r := Result{
		State:       s.state,
		NextEpisode: s.nextEpisode,
		Position:    s.position,
		Duration:    s.duration,
	}
	if s.state == StateOffline || s.state == StateUnreachable || s.state == StateMixedContentBlocked {
		r.Err = s.lastErr
	}
	return r
}

// Close stops playback and releases the pipeline.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closed = true
	p := s.pipeline
	s.pipeline = nil
	terminal := s.state.Terminal()
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	var err error
	if p != nil {
		err = p.Close()
	}
	s.wg.Wait()
	if !terminal {
		s.transition(StateClosed, -1, nil)
	}
	s.finish("closed")
	return err
}
