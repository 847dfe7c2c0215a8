package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"xtplay/internal/playback"
)

// external runs a player that offers no control channel. It is reported
// ready once the stream passes preflight and the process has started; the
// process exiting is reported as the user closing it.
type external struct {
	name string
	args func(src playback.Source, userAgent string) []string
	opts Options

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	closed bool
}

func newExternal(name string, args func(playback.Source, string) []string, opts Options) *external {
	return &external{name: name, args: args, opts: opts}
}

func vlcArgs(src playback.Source, userAgent string) []string {
	args := []string{
		src.URL,
		"--meta-title", src.Title,
		"--play-and-exit",
	}
	if userAgent != "" {
		args = append(args, "--http-user-agent", userAgent)
	}
	if src.StartPosition > 0 && !src.Live {
		args = append(args, fmt.Sprintf("--start-time=%.0f", src.StartPosition))
	}
	return args
}

// genericArgs serves iina and celluloid, which accept mpv-style flags.
func genericArgs(src playback.Source, userAgent string) []string {
	args := []string{src.URL, "--force-media-title=" + src.Title}
	if userAgent != "" {
		args = append(args, "--user-agent="+userAgent)
	}
	if src.StartPosition > 0 && !src.Live {
		args = append(args, fmt.Sprintf("--start=+%.0f", src.StartPosition))
	}
	return args
}

func (e *external) Load(ctx context.Context, src playback.Source) (<-chan playback.Event, error) {
	levels, err := Preflight(ctx, e.opts.Client, src.URL, e.opts.UserAgent)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(e.name, e.args(src, e.opts.UserAgent)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", e.name, err)
	}

	events := make(chan playback.Event, 2)
	done := make(chan struct{})
	e.mu.Lock()
	e.cmd, e.done = cmd, done
	e.mu.Unlock()

	events <- playback.Event{Kind: playback.EventReady, Levels: levels}
	go func() {
		defer close(done)
		defer close(events)
		// Players exit non-zero on user close, which is normal.
		_ = cmd.Wait()
		events <- playback.Event{Kind: playback.EventClosed}
	}()
	return events, nil
}

func (e *external) SelectQuality(index int) error {
	if index == playback.AutoQuality {
		return nil
	}
	return fmt.Errorf("%s: %w", e.name, ErrQualityUnsupported)
}

func (e *external) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cmd, done := e.cmd, e.done
	e.mu.Unlock()

	if cmd == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	<-done
	return nil
}

// checkOnly verifies a stream answers without rendering it.
type checkOnly struct {
	opts Options

	mu     sync.Mutex
	levels []playback.QualityLevel
	events chan playback.Event
	closed bool
}

func (c *checkOnly) Load(ctx context.Context, src playback.Source) (<-chan playback.Event, error) {
	levels, err := Preflight(ctx, c.opts.Client, src.URL, c.opts.UserAgent)
	if err != nil {
		return nil, err
	}
	events := make(chan playback.Event, 1)
	events <- playback.Event{Kind: playback.EventReady, Levels: levels}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("pipeline closed")
	}
	c.levels, c.events = levels, events
	return events, nil
}

func (c *checkOnly) SelectQuality(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index != playback.AutoQuality && (index < 0 || index >= len(c.levels)) {
		return fmt.Errorf("quality level %d out of range", index)
	}
	return nil
}

func (c *checkOnly) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.events != nil {
		close(c.events)
	}
	return nil
}
