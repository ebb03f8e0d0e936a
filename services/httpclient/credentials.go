package httpclient

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/trezcool/masomo-portal/core"
)

// CredentialSource hands out the current access credential and knows how to renew it.
type CredentialSource interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

// GuardState is the state of a RefreshGuard.
type GuardState int

const (
	Idle GuardState = iota
	Refreshing
)

func (s GuardState) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// RefreshGuard keeps at most one credential refresh in flight.
// Callers arriving while Refreshing wait for the running refresh and share its outcome.
type RefreshGuard struct {
	refresh func(ctx context.Context) error
	group   singleflight.Group

	mu      sync.Mutex
	state   GuardState
	waiting int
	gen     uint64 // successful refreshes
}

func NewRefreshGuard(refresh func(ctx context.Context) error) *RefreshGuard {
	return &RefreshGuard{refresh: refresh}
}

func (g *RefreshGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Waiting returns the number of callers queued behind the refresh in flight (its initiator included).
func (g *RefreshGuard) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

// Generation counts the successful refreshes so far.
func (g *RefreshGuard) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

func (g *RefreshGuard) Refresh(ctx context.Context) error {
	return g.RefreshSince(ctx, g.Generation())
}

// RefreshSince refreshes the credential unless a refresh already succeeded after generation seen.
func (g *RefreshGuard) RefreshSince(ctx context.Context, seen uint64) error {
	g.mu.Lock()
	g.state = Refreshing
	g.waiting++
	g.mu.Unlock()

	_, err, _ := g.group.Do("refresh", func() (interface{}, error) {
		if g.Generation() != seen {
			return nil, nil
		}
		// detached: one caller giving up must not fail the refresh for the others
		if err := g.refresh(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.gen++
		g.mu.Unlock()
		return nil, nil
	})

	g.mu.Lock()
	g.waiting--
	if g.waiting == 0 {
		g.state = Idle
	}
	g.mu.Unlock()
	return err
}

type credentialed struct {
	next  Requester
	src   CredentialSource
	guard *RefreshGuard
}

// WithCredentials decorates next: every request carries `Authorization: Bearer <access>` and a 401 is
// answered with one credential refresh (shared by concurrent 401s) and one replay of the request.
func WithCredentials(next Requester, src CredentialSource) Requester {
	return &credentialed{next: next, src: src, guard: NewRefreshGuard(src.Refresh)}
}

// Guard returns the refresh guard of a requester built by WithCredentials.
func Guard(rq Requester) (*RefreshGuard, bool) {
	c, ok := rq.(*credentialed)
	if !ok {
		return nil, false
	}
	return c.guard, true
}

func (c *credentialed) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Header.Get("Authorization") != "" {
		return c.next.Do(ctx, req)
	}

	seen := c.guard.Generation() // before the token: a newer token always comes with a newer generation
	used := c.src.AccessToken()
	resp, err := c.next.Do(ctx, authorized(req, used))
	if err == nil || !core.IsUnauthorized(err) || used == "" {
		return resp, err
	}

	if rErr := c.guard.RefreshSince(ctx, seen); rErr != nil {
		return nil, rErr
	}
	cur := c.src.AccessToken()
	if cur == "" {
		return resp, err
	}
	return c.next.Do(ctx, authorized(req, cur))
}

// authorized returns a shallow copy of req carrying the access credential.
func authorized(req *Request, token string) *Request {
	r := *req
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return &r
}
