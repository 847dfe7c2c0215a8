package fetch

import (
	"encoding/json"
	"fmt"
	"strings"

	"xtplay/internal/failure"
)

// StatusFirewall is the non-standard status some panels use to refuse
// clients they do not recognise.
const StatusFirewall = 456

// RelayError is the JSON body a relay returns when it could not reach the
// upstream.
type RelayError struct {
	OK             bool   `json:"ok"`
	ProxyError     bool   `json:"proxyError"`
	FirewallBlock  bool   `json:"firewallBlock,omitempty"`
	Error          string `json:"error"`
	Suggestion     string `json:"suggestion,omitempty"`
	Detail         string `json:"detail,omitempty"`
	TargetHost     string `json:"targetHost,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// ParseRelayError decodes body as a relay error payload. The second result
// is false when body is not one.
func ParseRelayError(body []byte) (*RelayError, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var re RelayError
	if err := json.Unmarshal([]byte(trimmed), &re); err != nil {
		return nil, false
	}
	if !re.ProxyError && !re.FirewallBlock {
		return nil, false
	}
	return &re, true
}

// Attempt records one strategy's outcome.
type Attempt struct {
	Strategy   string
	Status     int // 0 when no response was received
	Detail     string
	Firewall   bool
	Suggestion string
}

// Failure is returned when every strategy failed.
type Failure struct {
	Host       string
	Attempts   []Attempt
	LastStatus int
	LastDetail string
	Firewall   bool
	Suggestion string
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString("all fetch strategies failed")
	if f.LastStatus != 0 {
		fmt.Fprintf(&b, " (last HTTP status: %d)", f.LastStatus)
	}
	if f.LastDetail != "" {
		fmt.Fprintf(&b, " (%s)", f.LastDetail)
	}
	return b.String()
}

// Kind classifies the failure: FirewallBlock when any attempt was refused
// with 456, TransportFailure otherwise.
func (f *Failure) Kind() failure.Kind {
	if f.Firewall {
		return failure.FirewallBlock
	}
	return failure.TransportFailure
}

// Unwrap exposes the classified form so errors.As(err, **failure.Error) works.
func (f *Failure) Unwrap() error {
	if f.Firewall {
		return failure.Firewall(f.Host, f.Suggestion)
	}
	e := failure.New(failure.TransportFailure, "could not reach "+f.Host)
	e.Status = f.LastStatus
	if f.Suggestion != "" {
		e.Suggestion = f.Suggestion
	}
	return e
}
