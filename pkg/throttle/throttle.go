package throttle

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Identity is the consumer a counter is kept for
type Identity struct {
	// Principal is the authenticated principal id, empty for anonymous
	// consumers.
	Principal string
	// Address is the client address.
	Address string
}

// Authenticated reports whether the consumer carries a principal
func (i Identity) Authenticated() bool {
	return i.Principal != ""
}

// Key identifies the consumer: user:<id> when authenticated, ip:<addr>
// otherwise
func (i Identity) Key() string {
	if i.Authenticated() {
		return "user:" + i.Principal
	}
	return "ip:" + i.Address
}

// Matcher decides whether a throttle applies to a request
type Matcher func(r *http.Request, id Identity) bool

// Authenticated matches requests carrying a principal
func Authenticated() Matcher {
	return func(_ *http.Request, id Identity) bool { return id.Authenticated() }
}

// Unauthenticated matches anonymous requests
func Unauthenticated() Matcher {
	return func(_ *http.Request, id Identity) bool { return !id.Authenticated() }
}

// Always matches every request
func Always() Matcher {
	return func(*http.Request, Identity) bool { return true }
}

// Throttle is one rate-limit policy
type Throttle struct {
	ID     string
	Limit  int
	Window time.Duration
	// Match selects the requests the throttle applies to. Nil matches all.
	Match Matcher
}

// Matches reports whether t applies to the request
func (t *Throttle) Matches(r *http.Request, id Identity) bool {
	return t.Match == nil || t.Match(r, id)
}

// Validate checks the throttle definition
func (t *Throttle) Validate() error {
	switch {
	case t.ID == "":
		return errors.New("throttle id is required")
	case t.Limit <= 0:
		return fmt.Errorf("throttle %s: limit must be positive", t.ID)
	case t.Window <= 0:
		return fmt.Errorf("throttle %s: window must be positive", t.ID)
	}
	return nil
}

// ErrDuplicateThrottle is returned when a throttle id is registered twice
var ErrDuplicateThrottle = errors.New("duplicate throttle")

// Chain is the ordered list of throttles. Registration order is precedence:
// more specific throttles go first. It is built at bootstrap and read-only
// while serving.
type Chain struct {
	throttles []*Throttle
	byID      map[string]*Throttle
}

// NewChain creates a chain from throttles in order
func NewChain(throttles ...*Throttle) (*Chain, error) {
	c := &Chain{byID: make(map[string]*Throttle)}
	for _, t := range throttles {
		if err := c.Add(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends t to the chain
func (c *Chain) Add(t *Throttle) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, ok := c.byID[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateThrottle, t.ID)
	}
	c.throttles = append(c.throttles, t)
	c.byID[t.ID] = t
	return nil
}

// Resolve returns the first throttle matching the request, or nil when no
// rate limit applies
func (c *Chain) Resolve(r *http.Request, id Identity) *Throttle {
	if c == nil {
		return nil
	}
	for _, t := range c.throttles {
		if t.Matches(r, id) {
			return t
		}
	}
	return nil
}

// Lookup returns the throttle registered under id
func (c *Chain) Lookup(id string) (*Throttle, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.byID[id]
	return t, ok
}

// Throttles returns the chain in order
func (c *Chain) Throttles() []*Throttle {
	return append([]*Throttle(nil), c.throttles...)
}
