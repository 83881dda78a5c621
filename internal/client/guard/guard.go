// Package guard decides what a protected view renders from the auth state.
package guard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"objettrouve-service/internal/client/authstate"
)

const (
	DefaultLoginPath     = "/login"
	DefaultRedirectDelay = 1500 * time.Millisecond
)

type Render int

const (
	RenderFallback Render = iota
	RenderError
	RenderNothing
	RenderChildren
)

func (r Render) String() string {
	switch r {
	case RenderFallback:
		return "fallback"
	case RenderError:
		return "error"
	case RenderNothing:
		return "nothing"
	case RenderChildren:
		return "children"
	default:
		return "unknown"
	}
}

type Options struct {
	RequireAuth   bool
	LoginPath     string
	RedirectDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = DefaultLoginPath
	}
	if o.RedirectDelay <= 0 {
		o.RedirectDelay = DefaultRedirectDelay
	}
	return o
}

// Decision is what to render and, for RenderNothing, where to go next.
type Decision struct {
	Render        Render
	Err           error
	RedirectTo    string
	RedirectAfter time.Duration
}

func (d Decision) Redirects() bool {
	return d.RedirectTo != ""
}

// Evaluate is a pure function of the state and options.
func Evaluate(state authstate.State, opts Options) Decision {
	opts = opts.withDefaults()

	switch {
	case state.Loading:
		return Decision{Render: RenderFallback}
	case state.Err != nil:
		return Decision{Render: RenderError, Err: state.Err}
	case opts.RequireAuth && !state.IsAuthenticated():
		return Decision{
			Render:        RenderNothing,
			RedirectTo:    opts.LoginPath,
			RedirectAfter: opts.RedirectDelay,
		}
	default:
		return Decision{Render: RenderChildren}
	}
}

// LoginURL appends next=<returnTo> to the login path
func LoginURL(loginPath, returnTo string) string {
	if returnTo == "" {
		return loginPath
	}
	u, err := url.Parse(loginPath)
	if err != nil {
		return loginPath
	}
	q := u.Query()
	q.Set("next", returnTo)
	u.RawQuery = q.Encode()
	return u.String()
}

// Navigator performs the redirect chosen by a Guard.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Guard binds a Facade to a Navigator and schedules redirects.
type Guard struct {
	facade    *authstate.Facade
	navigator Navigator
	opts      Options

	mu      sync.Mutex
	pending *time.Timer
}

func New(facade *authstate.Facade, navigator Navigator, opts Options) *Guard {
	return &Guard{
		facade:    facade,
		navigator: navigator,
		opts:      opts.withDefaults(),
	}
}

// Check loads the state and evaluates it. A redirect decision is carried out
// after RedirectAfter unless Stop is called or a later Check supersedes it.
func (g *Guard) Check(ctx context.Context) Decision {
	d := Evaluate(g.facade.Load(ctx), g.opts)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
	if d.Redirects() {
		target := d.RedirectTo
		g.pending = time.AfterFunc(d.RedirectAfter, func() {
			g.navigator.Navigate(target)
		})
	}
	return d
}

// Stop cancels a pending redirect
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}
