// Package authstate keeps the caller's view of who is signed in, sourced from
// the server session rather than from locally held tokens.
package authstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// DefaultStaleTime is how long a fetched identity is trusted before Load refetches it.
const DefaultStaleTime = 5 * time.Minute

// ErrUnauthenticated is returned by a Backend when the server has no session for the caller.
var ErrUnauthenticated = xerrors.New(xerrors.KindUnauthenticated, "not signed in")

// State is the three-valued view consumed by route guards.
type State struct {
	Identity *auth.Identity
	Loading  bool
	Err      error
}

func (s State) IsAuthenticated() bool {
	return s.Identity != nil
}

// Backend is the server surface the facade talks to.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*auth.Result, error)
	CurrentUser(ctx context.Context) (*auth.Identity, error)
	SignOut(ctx context.Context) error
}

// Provider revokes provider-side tokens on sign-out.
type Provider interface {
	SignOut(ctx context.Context, accessToken string) error
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, accessToken string) error

func (f ProviderFunc) SignOut(ctx context.Context, accessToken string) error {
	return f(ctx, accessToken)
}

type Option func(*Facade)

func WithStaleTime(d time.Duration) Option {
	return func(f *Facade) {
		if d > 0 {
			f.staleTime = d
		}
	}
}

func WithTokenStore(store TokenStore) Option {
	return func(f *Facade) { f.tokens = store }
}

func WithProvider(p Provider) Option {
	return func(f *Facade) { f.provider = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Facade) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) {
		if now != nil {
			f.now = now
		}
	}
}

// Facade is the single source of truth for the current identity. Create it
// with New, share it with guards, and Close it when done.
type Facade struct {
	backend   Backend
	tokens    TokenStore
	provider  Provider
	logger    *zap.Logger
	now       func() time.Time
	staleTime time.Duration

	mu        sync.Mutex
	state     State
	fetchedAt time.Time
	stale     bool
	gen       uint64
	closed    bool
	subs      map[int]func(State)
	nextSub   int
}

func New(backend Backend, opts ...Option) *Facade {
	f := &Facade{
		backend:   backend,
		tokens:    NewMemoryTokenStore(),
		logger:    zap.NewNop(),
		now:       time.Now,
		staleTime: DefaultStaleTime,
		state:     State{Loading: true},
		subs:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns a snapshot of the current state
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Load returns the current state, fetching the identity from the server when
// the cached one is missing, stale or invalidated. Only the latest fetch is applied.
func (f *Facade) Load(ctx context.Context) State {
	f.mu.Lock()
	if f.closed || f.freshLocked() {
		s := f.state
		f.mu.Unlock()
		return s
	}
	f.gen++
	gen := f.gen
	f.state.Loading = true
	f.mu.Unlock()
	f.notify()

	identity, err := f.backend.CurrentUser(ctx)

	f.mu.Lock()
	if f.closed || gen != f.gen {
		// superseded by a sign-out or a newer fetch
		s := f.state
		f.mu.Unlock()
		return s
	}

	switch {
	case err == nil:
		f.state = State{Identity: identity}
		f.markFreshLocked()
	case errors.Is(err, ErrUnauthenticated) || xerrors.KindOf(err) == xerrors.KindUnauthenticated:
		f.state = State{}
		f.markFreshLocked()
	default:
		f.logger.Warn("failed to load current user", zap.Error(err))
		f.state = State{Identity: f.state.Identity, Err: err}
	}
	s := f.state
	f.mu.Unlock()

	f.notify()
	return s
}

// Invalidate marks the cached identity stale; the next Load refetches it
func (f *Facade) Invalidate() {
	f.mu.Lock()
	f.stale = true
	f.mu.Unlock()
}

// SignIn authenticates through the backend. A successful result becomes the
// current state; challenges and failures leave the state untouched.
func (f *Facade) SignIn(ctx context.Context, email, password string) (*auth.Result, error) {
	result, err := f.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, nil
	}

	if result.Session != nil {
		f.tokens.Save(result.Session)
	}

	f.mu.Lock()
	f.gen++
	f.state = State{Identity: result.Identity}
	f.markFreshLocked()
	f.mu.Unlock()

	f.notify()
	return result, nil
}

// SignOut revokes provider tokens when held, asks the server to drop its
// session, then clears local state. Only the local clear is guaranteed.
func (f *Facade) SignOut(ctx context.Context) {
	if creds, ok := f.tokens.Load(); ok && f.provider != nil && creds.AccessToken != "" {
		if err := f.provider.SignOut(ctx, creds.AccessToken); err != nil {
			f.logger.Warn("provider sign-out failed", zap.Error(err))
		}
	}

	if err := f.backend.SignOut(ctx); err != nil {
		f.logger.Warn("backend sign-out failed", zap.Error(err))
	}

	f.Clear()
}

// Clear drops every locally cached credential and identity
func (f *Facade) Clear() {
	f.tokens.Clear()

	f.mu.Lock()
	f.gen++
	f.state = State{}
	f.markFreshLocked()
	f.mu.Unlock()

	f.notify()
}

// Subscribe registers fn for state changes and returns a function that removes it
func (f *Facade) Subscribe(fn func(State)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Close detaches subscribers; in-flight loads are discarded
func (f *Facade) Close() {
	f.mu.Lock()
	f.closed = true
	f.gen++
	f.subs = make(map[int]func(State))
	f.mu.Unlock()
}

func (f *Facade) freshLocked() bool {
	if f.stale || f.fetchedAt.IsZero() || f.state.Err != nil {
		return false
	}
	return f.now().Sub(f.fetchedAt) < f.staleTime
}

func (f *Facade) markFreshLocked() {
	f.fetchedAt = f.now()
	f.stale = false
}

func (f *Facade) notify() {
	f.mu.Lock()
	s := f.state
	subs := make([]func(State), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
