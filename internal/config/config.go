// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultUserAgent is the client identity sent to panels and through the relay.
// Several panels only answer requests that look like a known player app.
const DefaultUserAgent = "IPTVSmarters/1.0.0 (Mobile; Android 12; SM-G991B)"

// Config holds all application configuration.
type Config struct {
	// Portal credentials for non-interactive use. When empty the active
	// stored account is used.
	Portal   string `toml:"portal"`
	Username string `toml:"username"`
	Password string `toml:"password"`

	Player      string `toml:"player"`
	History     bool   `toml:"history"`
	DownloadDir string `toml:"download_dir"`
	Debug       bool   `toml:"debug"`
	LogLevel    string `toml:"log_level"`

	Transport Transport `toml:"transport"`
	Playback  Playback  `toml:"playback"`
	Catalog   Catalog   `toml:"catalog"`
	Relay     Relay     `toml:"relay"`
}

// Transport configures the fetch strategies.
type Transport struct {
	// RelayURL is the endpoint of an xtplay relay, e.g. http://127.0.0.1:8787/relay.
	RelayURL string `toml:"relay_url"`
	// Native disables the relay strategy; requests go direct first.
	Native bool `toml:"native"`
	// PublicRelays are URL templates containing {url}.
	PublicRelays   []string `toml:"public_relays"`
	PublicRelayRPS float64  `toml:"public_relay_rps"`
	Timeout        Duration `toml:"timeout"`
	AuthTimeout    Duration `toml:"auth_timeout"`
	UserAgent      string   `toml:"user_agent"`
}

// Playback configures the playback engine.
type Playback struct {
	LiveTimeout  Duration `toml:"live_timeout"`
	VODTimeout   Duration `toml:"vod_timeout"`
	ProbeTimeout Duration `toml:"probe_timeout"`
	// SecureContext refuses plain-http media, mirroring a player embedded
	// in an https page.
	SecureContext bool `toml:"secure_context"`
}

// Catalog configures catalog behaviour.
type Catalog struct {
	// LenientAuth accepts a JSON login response without user_info.
	LenientAuth bool `toml:"lenient_auth"`
}

// Relay configures the `relay` subcommand.
type Relay struct {
	Listen          string   `toml:"listen"`
	UpstreamTimeout Duration `toml:"upstream_timeout"`
	RateLimit       int      `toml:"rate_limit"` // requests per minute per client IP
}

// Duration is a time.Duration that decodes from TOML strings like "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Player:      "mpv",
		History:     true,
		DownloadDir: "~/Videos/xtplay",
		Transport: Transport{
			PublicRelays: []string{
				"https://corsproxy.io/?{url}",
				"https://api.allorigins.win/raw?url={url}",
				"https://api.codetabs.com/v1/proxy?quest={url}",
			},
			PublicRelayRPS: 2,
			Timeout:        Duration{15 * time.Second},
			AuthTimeout:    Duration{20 * time.Second},
			UserAgent:      DefaultUserAgent,
		},
		Playback: Playback{
			LiveTimeout:  Duration{15 * time.Second},
			VODTimeout:   Duration{10 * time.Second},
			ProbeTimeout: Duration{5 * time.Second},
		},
		Relay: Relay{
			Listen:          "127.0.0.1:8787",
			UpstreamTimeout: Duration{25 * time.Second},
			RateLimit:       120,
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "xtplay"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "xtplay"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	validPlayers := map[string]bool{
		"mpv": true, "vlc": true, "iina": true, "celluloid": true, "none": true,
	}
	if !validPlayers[strings.ToLower(c.Player)] {
		return fmt.Errorf("unsupported player %q (valid: mpv, vlc, iina, celluloid, none)", c.Player)
	}

	if c.Portal != "" {
		if err := validateHTTPURL(c.Portal); err != nil {
			return fmt.Errorf("portal: %w", err)
		}
	}
	if c.Transport.RelayURL != "" {
		if err := validateHTTPURL(c.Transport.RelayURL); err != nil {
			return fmt.Errorf("transport.relay_url: %w", err)
		}
	}
	for _, tmpl := range c.Transport.PublicRelays {
		if !strings.Contains(tmpl, "{url}") {
			return fmt.Errorf("transport.public_relays: %q has no {url} placeholder", tmpl)
		}
	}

	positive := map[string]time.Duration{
		"transport.timeout":      c.Transport.Timeout.Duration,
		"transport.auth_timeout": c.Transport.AuthTimeout.Duration,
		"playback.live_timeout":  c.Playback.LiveTimeout.Duration,
		"playback.vod_timeout":   c.Playback.VODTimeout.Duration,
		"playback.probe_timeout": c.Playback.ProbeTimeout.Duration,
		"relay.upstream_timeout": c.Relay.UpstreamTimeout.Duration,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Transport.PublicRelayRPS < 0 {
		return fmt.Errorf("transport.public_relay_rps cannot be negative")
	}
	if c.Relay.RateLimit < 0 {
		return fmt.Errorf("relay.rate_limit cannot be negative")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// DatabasePath returns the path to the SQLite database holding accounts,
// favorites and watch progress.
func DatabasePath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "xtplay", "xtplay.db"), nil
}
