// Package fetch resolves an upstream URL through an ordered list of transport
// strategies: a configured relay, a direct request, then public relays.
// The strategy that last worked is remembered per session and tried first.
package fetch

import (
	"net/url"
	"strings"
	"sync"
)

// Kind is the class of a strategy.
type Kind string

const (
	KindRelay  Kind = "relay"
	KindDirect Kind = "direct"
	KindPublic Kind = "public"
)

// Strategy is one way of reaching an upstream URL.
type Strategy struct {
	Name string // unique within a Resolver, used as the cache value
	Kind Kind
	tmpl string // relay endpoint or public relay template
}

// URL returns the URL to request in order to reach target.
func (s Strategy) URL(target string) string {
	switch s.Kind {
	case KindRelay:
		sep := "?"
		if strings.Contains(s.tmpl, "?") {
			sep = "&"
		}
		return s.tmpl + sep + "url=" + url.QueryEscape(target)
	case KindPublic:
		return strings.ReplaceAll(s.tmpl, "{url}", url.QueryEscape(target))
	default:
		return target
	}
}

// Relay returns a strategy going through an xtplay relay endpoint.
func Relay(endpoint string) Strategy {
	return Strategy{Name: string(KindRelay), Kind: KindRelay, tmpl: endpoint}
}

// Direct returns the strategy requesting the target itself.
func Direct() Strategy {
	return Strategy{Name: string(KindDirect), Kind: KindDirect}
}

// Public returns a public relay strategy from a template containing {url}.
func Public(tmpl string) Strategy {
	name := string(KindPublic)
	if u, err := url.Parse(strings.ReplaceAll(tmpl, "{url}", "")); err == nil && u.Host != "" {
		name += ":" + u.Host
	}
	return Strategy{Name: name, Kind: KindPublic, tmpl: tmpl}
}

// Cache remembers the name of the last strategy that succeeded.
// The zero value is empty and ready to use.
type Cache struct {
	mu   sync.Mutex
	name string
}

// Get returns the cached strategy name, "" when empty.
func (c *Cache) Get() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Set records the strategy that worked.
func (c *Cache) Set(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Reset forgets the cached strategy.
func (c *Cache) Reset() {
	c.Set("")
}
