package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"xtplay/internal/playback"
)

// mpv renders a source in mpv and follows it over the JSON IPC socket.
// mpv starts idle; the file is loaded over IPC once the socket is observed,
// so no event is missed.
type mpv struct {
	binary string
	opts   Options

	mu       sync.Mutex
	cmd      *exec.Cmd
	conn     net.Conn
	dir      string
	levels   []playback.QualityLevel
	stop     chan struct{}
	done     chan struct{}
	closed   bool
	requests int
}

// ipcEvent is one line from mpv's IPC socket.
type ipcEvent struct {
	Event     string `json:"event"`
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Data      any    `json:"data"`
	Reason    string `json:"reason"`
	FileError string `json:"file_error"`
}

const (
	observeTimePos = iota + 1
	observeDuration
)

func mpvArgs(src playback.Source, socket, userAgent string) []string {
	args := []string{
		"--idle=once",
		"--force-window=immediate",
		"--force-media-title=" + src.Title,
		"--input-ipc-server=" + socket,
		"--really-quiet",
	}
	if userAgent != "" {
		args = append(args, "--user-agent="+userAgent)
	}
	if src.StartPosition > 0 && !src.Live {
		args = append(args, fmt.Sprintf("--start=+%.0f", src.StartPosition))
	}
	return args
}

func (m *mpv) Load(ctx context.Context, src playback.Source) (<-chan playback.Event, error) {
	levels, err := Preflight(ctx, m.opts.Client, src.URL, m.opts.UserAgent)
	if err != nil {
		return nil, err
	}

	// Randomized socket dir prevents symlink attacks on a predictable path.
	dir, err := os.MkdirTemp("", "xtplay-mpv-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	socket := filepath.Join(dir, "socket")

	cmd := exec.Command(m.binary, mpvArgs(src, socket, m.opts.UserAgent)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("starting mpv: %w", err)
	}

	conn, err := dialSocket(ctx, socket)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("connecting to mpv: %w", err)
	}

	m.mu.Lock()
	m.cmd, m.conn, m.dir, m.levels = cmd, conn, dir, levels
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	events := make(chan playback.Event, 16)
	go m.read(events)

	if err := m.command("observe_property", observeTimePos, "time-pos"); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.command("observe_property", observeDuration, "duration"); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.command("loadfile", src.URL); err != nil {
		m.Close()
		return nil, err
	}
	return events, nil
}

// dialSocket waits for mpv to create its IPC socket.
func dialSocket(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// command sends one IPC command.
func (m *mpv) command(args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.closed {
		return errors.New("mpv is not running")
	}
	m.requests++
	data, err := json.Marshal(map[string]any{"command": args, "request_id": m.requests})
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := m.conn.Write(data); err != nil {
		return fmt.Errorf("writing to mpv: %w", err)
	}
	return nil
}

// read translates IPC events until mpv exits, then closes events.
func (m *mpv) read(events chan<- playback.Event) {
	m.mu.Lock()
	conn, cmd, stop, done, levels := m.conn, m.cmd, m.stop, m.done, m.levels
	m.mu.Unlock()
	defer close(done)
	defer close(events)

	send := func(ev playback.Event) bool {
		select {
		case events <- ev:
			return true
		case <-stop:
			return false
		}
	}

	var position, duration float64
	finished := false
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var ev ipcEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		out, ok := translate(ev, levels, &position, &duration)
		if !ok {
			continue
		}
		if !send(out) {
			break
		}
		if out.Kind != playback.EventPosition && out.Kind != playback.EventReady {
			finished = true
			break
		}
	}

	_ = cmd.Wait()
	if !finished {
		send(playback.Event{Kind: playback.EventClosed, Position: position, Duration: duration})
	}
}

// translate maps an mpv IPC event to a pipeline event.
func translate(ev ipcEvent, levels []playback.QualityLevel, position, duration *float64) (playback.Event, bool) {
	switch ev.Event {
	case "file-loaded":
		return playback.Event{Kind: playback.EventReady, Levels: levels}, true
	case "property-change":
		v, ok := ev.Data.(float64)
		if !ok {
			return playback.Event{}, false
		}
		switch ev.ID {
		case observeTimePos:
			*position = v
		case observeDuration:
			*duration = v
		default:
			return playback.Event{}, false
		}
		return playback.Event{Kind: playback.EventPosition, Position: *position, Duration: *duration}, true
	case "end-file":
		switch ev.Reason {
		case "eof":
			return playback.Event{Kind: playback.EventEnded, Position: *position, Duration: *duration}, true
		case "error":
			msg := ev.FileError
			if msg == "" {
				msg = "unknown error"
			}
			return playback.Event{Kind: playback.EventFatal, Err: fmt.Errorf("mpv: %s", msg)}, true
		case "redirect":
			return playback.Event{}, false
		default: // quit, stop
			return playback.Event{Kind: playback.EventClosed, Position: *position, Duration: *duration}, true
		}
	}
	return playback.Event{}, false
}

// SelectQuality caps mpv's HLS bitrate at the chosen level.
func (m *mpv) SelectQuality(index int) error {
	m.mu.Lock()
	levels := m.levels
	m.mu.Unlock()

	if index == playback.AutoQuality {
		return m.command("set_property", "hls-bitrate", "max")
	}
	if index < 0 || index >= len(levels) {
		return fmt.Errorf("quality level %d out of range", index)
	}
	if levels[index].Bitrate <= 0 {
		return ErrQualityUnsupported
	}
	return m.command("set_property", "hls-bitrate", levels[index].Bitrate)
}

func (m *mpv) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cmd, conn, dir, stop, done := m.cmd, m.conn, m.dir, m.stop, m.done
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	if dir != "" {
		os.RemoveAll(dir)
	}
	return nil
}
