// Package session holds the state of the current portal login. A Session is
// passed explicitly to every component that talks to the panel; nothing is
// kept in package globals.
package session

import (
	"errors"
	"fmt"
	"sync"

	"xtplay/internal/fetch"
	"xtplay/internal/httputil"
	"xtplay/internal/xtream"
)

// ErrReset is returned when a session was reinitialised while a request
// issued under the previous credentials was in flight.
var ErrReset = errors.New("session was reset during the request")

// Session is the active portal login plus its fetch strategy cache.
// An empty base URL is demo mode.
type Session struct {
	mu            sync.RWMutex
	creds         xtream.Credentials
	authenticated bool
	userInfo      *xtream.UserInfo
	serverInfo    *xtream.ServerInfo
	generation    uint64

	strategies fetch.Cache
}

// New creates a session. baseURL may be empty for demo mode; otherwise it
// is normalised and must be http(s).
func New(baseURL, username, password string) (*Session, error) {
	s := &Session{}
	if err := s.Reinit(baseURL, username, password); err != nil {
		return nil, err
	}
	return s, nil
}

// Demo returns a session that serves sample data.
func Demo() *Session {
	return &Session{}
}

// Reinit replaces the credentials, clears authentication and forgets the
// cached fetch strategy. Requests issued before Reinit are invalidated.
func (s *Session) Reinit(baseURL, username, password string) error {
	creds := xtream.Credentials{Username: username, Password: password}
	if baseURL != "" {
		base, err := httputil.NormalizeBaseURL(baseURL)
		if err != nil {
			return fmt.Errorf("portal URL: %w", err)
		}
		if username == "" || password == "" {
			return fmt.Errorf("username and password are required")
		}
		creds.BaseURL = base
	}

	s.mu.Lock()
	s.creds = creds
	s.authenticated = false
	s.userInfo = nil
	s.serverInfo = nil
	s.generation++
	s.mu.Unlock()

	s.strategies.Reset()
	return nil
}

// Credentials returns the current credentials.
func (s *Session) Credentials() xtream.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// IsDemo reports whether the session has no portal.
func (s *Session) IsDemo() bool {
	return s.Credentials().BaseURL == ""
}

// Generation identifies the current credentials; it changes on Reinit.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// MarkAuthenticated records a successful login made under generation gen.
// It returns false, changing nothing, when the session was reset since.
func (s *Session) MarkAuthenticated(gen uint64, user *xtream.UserInfo, server *xtream.ServerInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.authenticated = true
	s.userInfo = user
	s.serverInfo = server
	return true
}

// Authenticated reports whether the panel accepted the credentials.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// UserInfo returns the account details from the last login, or nil.
func (s *Session) UserInfo() *xtream.UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userInfo
}

// ServerInfo returns the panel details from the last login, or nil.
func (s *Session) ServerInfo() *xtream.ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo
}

// StrategyCache returns the fetch strategy cache bound to this session.
func (s *Session) StrategyCache() *fetch.Cache {
	return &s.strategies
}
