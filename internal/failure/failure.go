// Package failure defines the error kinds surfaced to the user.
//
// Every failure that reaches the UI carries a Kind, a human-readable message
// and, where one exists, a suggestion for what to try next.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	TransportFailure
	AuthRejected
	FirewallBlock
	MixedContentBlocked
	StreamOffline
	ServerUnreachable
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case TransportFailure:
		return "transport_failure"
	case AuthRejected:
		return "auth_rejected"
	case FirewallBlock:
		return "firewall_block"
	case MixedContentBlocked:
		return "mixed_content_blocked"
	case StreamOffline:
		return "stream_offline"
	case ServerUnreachable:
		return "server_unreachable"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Retryable reports whether offering a retry makes sense for this kind.
func (k Kind) Retryable() bool {
	switch k {
	case StreamOffline, ServerUnreachable, TransportFailure, FirewallBlock:
		return true
	default:
		return false
	}
}

// Error is a classified failure.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	Host       string // upstream host, set for FirewallBlock
	Status     int    // last HTTP status, 0 when none was received
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so errors.Is(err, failure.New(StreamOffline, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New creates an Error with the default suggestion for its kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Suggestion: defaultSuggestion(kind)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// Firewall builds a FirewallBlock naming the upstream host.
func Firewall(host string, suggestion string) *Error {
	e := New(FirewallBlock, fmt.Sprintf("connection blocked by server firewall (%s)", host))
	e.Host = host
	e.Status = 456
	if suggestion != "" {
		e.Suggestion = suggestion
	}
	return e
}

// kinded is implemented by errors from other packages that know their kind
// without being an *Error.
type kinded interface {
	Kind() Kind
}

// KindOf returns the Kind of err, looking through wrapping. Unknown is
// returned for nil or unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Unknown
}

// SuggestionOf returns the suggestion attached to err, if any.
func SuggestionOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Suggestion
	}
	if k := KindOf(err); k != Unknown {
		return defaultSuggestion(k)
	}
	return ""
}

func defaultSuggestion(kind Kind) string {
	switch kind {
	case TransportFailure:
		return "Check the portal URL and your network connection, then try again."
	case AuthRejected:
		return "Check your username and password."
	case FirewallBlock:
		return "Try using a different server port, check if the server allows web-based players, or contact your IPTV provider."
	case MixedContentBlocked:
		return "This stream is served over plain HTTP. Disable secure_context in the [playback] config or use an HTTPS portal."
	case StreamOffline:
		return "The server is up but this stream is not playing. Try another channel or retry later."
	case ServerUnreachable:
		return "The server did not answer. Check your connection or try again later."
	case MalformedResponse:
		return "The portal returned an unexpected response. Verify the portal URL."
	default:
		return ""
	}
}
