package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"xtplay/internal/failure"
	"xtplay/internal/httputil"
)

// outcome scripts how a fake pipeline reacts to Load for one URL.
type outcome int

const (
	hang outcome = iota // never signals
	ready
	fatal
	loadError
)

type fakeEnv struct {
	mu        sync.Mutex
	outcomes  map[string]outcome
	levels    []QualityLevel
	active    int
	maxActive int
	created   int
	loads     []string
	pipelines []*fakePipeline
}

func newFakeEnv(outcomes map[string]outcome) *fakeEnv {
	return &fakeEnv{outcomes: outcomes}
}

func (f *fakeEnv) factory() Pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active++
	f.created++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	p := &fakePipeline{env: f, quality: AutoQuality}
	f.pipelines = append(f.pipelines, p)
	return p
}

func (f *fakeEnv) set(url string, o outcome) {
	f.mu.Lock()
	f.outcomes[url] = o
	f.mu.Unlock()
}

func (f *fakeEnv) snapshot() (active, maxActive, created int, loads []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.maxActive, f.created, append([]string(nil), f.loads...)
}

func (f *fakeEnv) pipeline(i int) *fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pipelines[i]
}

type fakePipeline struct {
	env     *fakeEnv
	mu      sync.Mutex
	events  chan Event
	closed  bool
	quality int
	src     Source
}

func (p *fakePipeline) Load(ctx context.Context, src Source) (<-chan Event, error) {
	p.env.mu.Lock()
	p.env.loads = append(p.env.loads, src.URL)
	o := p.env.outcomes[src.URL]
	levels := p.env.levels
	p.env.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = src
	if o == loadError {
		return nil, errors.New("unsupported source")
	}
	p.events = make(chan Event, 8)
	switch o {
	case ready:
		p.events <- Event{Kind: EventReady, Levels: levels}
	case fatal:
		p.events <- Event{Kind: EventFatal, Err: errors.New("manifest load error")}
	}
	return p.events, nil
}

// emit sends ev unless the pipeline was closed.
func (p *fakePipeline) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.events <- ev
	}
}

func (p *fakePipeline) SelectQuality(index int) error {
	p.mu.Lock()
	p.quality = index
	p.mu.Unlock()
	return nil
}

func (p *fakePipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.events != nil {
		close(p.events)
	}
	p.env.mu.Lock()
	p.env.active--
	p.env.mu.Unlock()
	return nil
}

func (p *fakePipeline) selected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quality
}

func (p *fakePipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type countingProber struct {
	calls atomic.Int32
	err   error
}

func (c *countingProber) Probe(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

var liveCandidates = []string{
	"http://panel.example:8080/live/bob/x/42.ts",
	"http://panel.example:8080/live/bob/x/42.m3u8",
	"http://panel.example:8080/bob/x/42.ts",
	"http://panel.example:8080/bob/x/42.m3u8",
}

func fastOptions() Options {
	return Options{LiveTimeout: 200 * time.Millisecond, VODTimeout: 200 * time.Millisecond, ProbeTimeout: time.Second}
}

func TestFirstCandidatePlays(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[0]: ready})
	e := NewEngine(env.factory, &countingProber{}, fastOptions())

	s, err := e.Start(context.Background(), Request{Title: "News", Candidates: liveCandidates, Live: true})
	require.NoError(t, err)
	defer s.Close()

	st := s.Status()
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, 0, st.Candidate)
	assert.True(t, st.Loaded)
	_, _, created, loads := env.snapshot()
	assert.Equal(t, 1, created)
	assert.Equal(t, liveCandidates[:1], loads)
}

func TestFallsThroughToLastCandidate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{
		liveCandidates[0]: fatal,
		liveCandidates[1]: loadError,
		liveCandidates[2]: hang,
		liveCandidates[3]: ready,
	})
	var mu sync.Mutex
	var seen []Transition
	opts := fastOptions()
	opts.LiveTimeout = 50 * time.Millisecond
	opts.OnTransition = func(tr Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	}
	prober := &countingProber{}

	s, err := NewEngine(env.factory, prober, opts).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, StatePlaying, s.Status().State)
	assert.Equal(t, 3, s.Status().Candidate)
	assert.Equal(t, liveCandidates[3], s.Status().URL)

	active, maxActive, created, loads := env.snapshot()
	assert.Equal(t, liveCandidates, loads, "candidates are tried in order")
	assert.Equal(t, 4, created)
	assert.Equal(t, 1, maxActive, "never two pipelines at once")
	assert.Equal(t, 1, active)
	assert.EqualValues(t, 0, prober.calls.Load())

	mu.Lock()
	defer mu.Unlock()
	var steps []State
	var idx []int
	for _, tr := range seen {
		steps = append(steps, tr.To)
		idx = append(idx, tr.Candidate)
	}
	assert.Equal(t, []State{StateProbing, StateProbing, StateProbing, StateProbing, StatePlaying}, steps)
	assert.Equal(t, []int{0, 1, 2, 3, 3}, idx)
}

func TestExhaustedServerReachable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{})
	for _, u := range liveCandidates {
		env.set(u, fatal)
	}
	prober := &countingProber{}

	s, err := NewEngine(env.factory, prober, fastOptions()).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.Error(t, err)
	assert.Equal(t, failure.StreamOffline, failure.KindOf(err))
	assert.Equal(t, StateOffline, s.Status().State)
	assert.EqualValues(t, 1, prober.calls.Load(), "exactly one reachability probe")

	active, maxActive, created, _ := env.snapshot()
	assert.Equal(t, 0, active, "every pipeline released")
	assert.Equal(t, 1, maxActive)
	assert.Equal(t, len(liveCandidates), created)

	res := s.Wait(context.Background())
	assert.Equal(t, StateOffline, res.State)
	assert.Equal(t, failure.StreamOffline, failure.KindOf(res.Err))
	assert.True(t, failure.StreamOffline.Retryable())
}

func TestExhaustedServerUnreachable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{"http://panel.example/movie/a/b/1.mp4": fatal})
	prober := &countingProber{err: errors.New("connection refused")}

	s, err := NewEngine(env.factory, prober, fastOptions()).Start(context.Background(),
		Request{Candidates: []string{"http://panel.example/movie/a/b/1.mp4"}})
	require.Error(t, err)
	assert.Equal(t, failure.ServerUnreachable, failure.KindOf(err))
	assert.Equal(t, StateUnreachable, s.Status().State)
	assert.EqualValues(t, 1, prober.calls.Load())
}

func TestVODTimeoutApplies(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{"http://panel.example/movie/a/b/1.mp4": hang})
	opts := fastOptions()
	opts.LiveTimeout = time.Hour
	opts.VODTimeout = 30 * time.Millisecond

	start := time.Now()
	_, err := NewEngine(env.factory, &countingProber{}, opts).Start(context.Background(),
		Request{Candidates: []string{"http://panel.example/movie/a/b/1.mp4"}})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMixedContentShortCircuits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[0]: ready})
	prober := &countingProber{}
	opts := fastOptions()
	opts.SecureContext = true

	s, err := NewEngine(env.factory, prober, opts).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.Error(t, err)
	assert.Equal(t, failure.MixedContentBlocked, failure.KindOf(err))
	assert.Equal(t, StateMixedContentBlocked, s.Status().State)

	_, _, created, _ := env.snapshot()
	assert.Zero(t, created, "no pipeline for a blocked stream")
	assert.Zero(t, prober.calls.Load())
	assert.Error(t, s.Retry(context.Background()), "mixed content is not retryable")
}

func TestSecureContextAllowsHTTPS(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	u := "https://panel.example/live/bob/x/42.m3u8"
	env := newFakeEnv(map[string]outcome{u: ready})
	opts := fastOptions()
	opts.SecureContext = true

	s, err := NewEngine(env.factory, nil, opts).Start(context.Background(), Request{Candidates: []string{u}, Live: true})
	require.NoError(t, err)
	s.Close()
}

func TestRetryRestartsAtFirstCandidate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[0]: fatal, liveCandidates[1]: fatal,
		liveCandidates[2]: fatal, liveCandidates[3]: fatal})
	s, err := NewEngine(env.factory, &countingProber{}, fastOptions()).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.Error(t, err)

	env.set(liveCandidates[0], ready)
	require.NoError(t, s.Retry(context.Background()))
	assert.Equal(t, StatePlaying, s.Status().State)
	assert.Equal(t, 0, s.Status().Candidate)
	require.NoError(t, s.Close())
	assert.Error(t, s.Retry(context.Background()))
}

func TestFatalWhilePlayingMovesToNextCandidate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[0]: ready, liveCandidates[1]: ready})
	s, err := NewEngine(env.factory, &countingProber{}, fastOptions()).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.NoError(t, err)
	defer s.Close()

	env.pipeline(0).emit(Event{Kind: EventFatal, Err: errors.New("network error")})

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.State == StatePlaying && st.Candidate == 1
	}, 2*time.Second, 5*time.Millisecond)

	active, maxActive, _, _ := env.snapshot()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, maxActive)
	assert.True(t, env.pipeline(0).isClosed())
}

func TestEpisodeEndTriggersNextEpisode(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	u := "http://panel.example/series/a/b/1001.mp4"
	env := newFakeEnv(map[string]outcome{u: ready})
	var notified atomic.Int32

	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(), Request{
		Candidates:    []string{u},
		Episodic:      true,
		OnNextEpisode: func() { notified.Add(1) },
	})
	require.NoError(t, err)

	env.pipeline(0).emit(Event{Kind: EventPosition, Position: 2870, Duration: 2880})
	env.pipeline(0).emit(Event{Kind: EventEnded})

	res := s.Wait(context.Background())
	assert.Equal(t, StateClosed, res.State)
	assert.True(t, res.NextEpisode)
	assert.EqualValues(t, 1, notified.Load())
	assert.InDelta(t, 2870, res.Position, 0.001)
	assert.InDelta(t, 2880, res.Duration, 0.001)
	assert.True(t, env.pipeline(0).isClosed())
}

func TestMovieEndDoesNotAdvance(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	u := "http://panel.example/movie/a/b/101.mp4"
	env := newFakeEnv(map[string]outcome{u: ready})
	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(), Request{Candidates: []string{u}})
	require.NoError(t, err)

	env.pipeline(0).emit(Event{Kind: EventEnded})
	res := s.Wait(context.Background())
	assert.Equal(t, StateClosed, res.State)
	assert.False(t, res.NextEpisode)
}

func TestUserCloseEndsSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	u := "http://panel.example/movie/a/b/101.mp4"
	env := newFakeEnv(map[string]outcome{u: ready})
	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(), Request{Candidates: []string{u}})
	require.NoError(t, err)

	// the player window was closed: the pipeline closes its channel
	env.pipeline(0).Close()
	res := s.Wait(context.Background())
	assert.Equal(t, StateClosed, res.State)
	assert.NoError(t, res.Err)
}

func TestQualitySelection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[1]: ready, liveCandidates[0]: fatal})
	env.levels = []QualityLevel{{Index: 0, Height: 360}, {Index: 1, Height: 720}, {Index: 2, Height: 1080}}

	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.NoError(t, err)
	defer s.Close()

	st := s.Status()
	require.Len(t, st.Levels, 3)
	assert.Equal(t, AutoQuality, st.Quality)
	assert.False(t, st.Manual)

	require.NoError(t, s.SelectQuality(2))
	assert.Equal(t, 2, env.pipeline(1).selected())
	assert.True(t, s.Status().Manual)
	assert.Equal(t, 2, s.Status().Quality)

	assert.Error(t, s.SelectQuality(3))
	assert.Error(t, s.SelectQuality(-2))

	require.NoError(t, s.SelectQuality(AutoQuality))
	assert.False(t, s.Status().Manual)
}

func TestManualQualitySurvivesFallback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[0]: ready, liveCandidates[1]: ready})
	env.levels = []QualityLevel{{Index: 0, Bitrate: 800000}, {Index: 1, Bitrate: 2500000}}

	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SelectQuality(0))
	env.pipeline(0).emit(Event{Kind: EventFatal, Err: errors.New("decode error")})

	require.Eventually(t, func() bool { return s.Status().Candidate == 1 && s.Status().State == StatePlaying },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, env.pipeline(1).selected())
	assert.True(t, s.Status().Manual)
}

func TestSelectQualityRequiresPlaying(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{"http://panel.example/movie/a/b/1.mp4": fatal})
	s, _ := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(),
		Request{Candidates: []string{"http://panel.example/movie/a/b/1.mp4"}})
	assert.Error(t, s.SelectQuality(0))
}

func TestCloseReleasesPipeline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{liveCandidates[0]: ready})
	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(),
		Request{Candidates: liveCandidates, Live: true})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	active, _, _, _ := env.snapshot()
	assert.Zero(t, active)
	assert.Equal(t, StateClosed, s.Wait(context.Background()).State)
}

func TestCancelledContextStopsProbing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newFakeEnv(map[string]outcome{})
	opts := fastOptions()
	opts.LiveTimeout = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	prober := &countingProber{}
	s, err := NewEngine(env.factory, prober, opts).Start(ctx, Request{Candidates: liveCandidates, Live: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, s.Status().State)
	assert.Zero(t, prober.calls.Load())

	active, _, created, _ := env.snapshot()
	assert.Zero(t, active)
	assert.Equal(t, 1, created)
}

func TestStartWithoutCandidates(t *testing.T) {
	_, err := NewEngine(newFakeEnv(nil).factory, nil, Options{}).Start(context.Background(), Request{})
	assert.Error(t, err)
}

func TestResumePositionPassedToPipeline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	u := "http://panel.example/movie/a/b/101.mp4"
	env := newFakeEnv(map[string]outcome{u: ready})
	s, err := NewEngine(env.factory, nil, fastOptions()).Start(context.Background(),
		Request{Title: "Inception", Candidates: []string{u}, StartPosition: 600})
	require.NoError(t, err)
	defer s.Close()

	p := env.pipeline(0)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, Source{URL: u, Title: "Inception", StartPosition: 600}, p.src)
}

func TestQualityLevelLabel(t *testing.T) {
	assert.Equal(t, "720p", QualityLevel{Height: 720, Bitrate: 2500000}.Label())
	assert.Equal(t, "2500k", QualityLevel{Bitrate: 2500000}.Label())
	assert.Equal(t, "level 3", QualityLevel{Index: 3}.Label())
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	p := &HTTPProber{Client: httputil.NewClient(time.Second), URL: srv.URL + "/player_api.php"}
	assert.NoError(t, p.Probe(context.Background()), "any HTTP answer means reachable")

	srv.Close()
	assert.Error(t, p.Probe(context.Background()))
}
