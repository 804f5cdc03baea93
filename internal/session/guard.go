package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-client/internal/cache"
	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// Guard owns the live Session and serializes authentication-changing
// operations. Session transitions are the sole trigger for opening or closing
// the push stream; the lifecycle controller observes them through OnChange.
type Guard struct {
	gateway   domain.AuthGateway
	users     domain.UserGateway
	store     domain.TokenStore
	cache     *cache.Cache
	userStale time.Duration

	// opMu is the process-wide single-flight lock for login/register/logout.
	// It is released on every exit path; a held lock always means an
	// operation is genuinely in flight.
	opMu sync.Mutex

	mu        sync.Mutex
	session   domain.Session
	listeners []func(domain.Session)

	log logger.Logger
}

func NewGuard(
	gateway domain.AuthGateway,
	users domain.UserGateway,
	store domain.TokenStore,
	c *cache.Cache,
	userStale time.Duration,
	log logger.Logger,
) *Guard {
	if userStale <= 0 {
		userStale = 15 * time.Minute
	}
	return &Guard{
		gateway:   gateway,
		users:     users,
		store:     store,
		cache:     c,
		userStale: userStale,
		log:       log,
	}
}

// OnChange registers a listener for session transitions. Listeners run after
// the session value has been swapped, outside any lock, and only once an auth
// operation has settled.
func (g *Guard) OnChange(fn func(domain.Session)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *Guard) Session() domain.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func (g *Guard) Token() string {
	return g.Session().Token
}

func (g *Guard) Login(ctx context.Context, email, password string) error {
	if !g.opMu.TryLock() {
		return domain.ErrOperationInProgress
	}
	var events []domain.Session
	defer func() {
		g.opMu.Unlock()
		g.notify(events)
	}()

	// Every authentication attempt starts from a clean session.
	events = append(events, g.set(domain.Session{}))

	result, err := g.gateway.Login(ctx, email, password)
	if err != nil {
		g.teardown(&events)
		return err
	}
	return g.establish(result, &events)
}

func (g *Guard) Register(ctx context.Context, profile domain.Profile, password string) error {
	if !g.opMu.TryLock() {
		return domain.ErrOperationInProgress
	}
	var events []domain.Session
	defer func() {
		g.opMu.Unlock()
		g.notify(events)
	}()

	events = append(events, g.set(domain.Session{}))

	result, err := g.gateway.Register(ctx, profile, password)
	if err != nil {
		g.teardown(&events)
		return err
	}
	return g.establish(result, &events)
}

// Logout reaches the same terminal state whether or not the server call
// succeeds: token cleared, cache purged, stream signalled to disconnect.
func (g *Guard) Logout(ctx context.Context) error {
	if !g.opMu.TryLock() {
		return domain.ErrOperationInProgress
	}
	var events []domain.Session
	defer func() {
		g.opMu.Unlock()
		g.notify(events)
	}()

	err := g.gateway.Logout(ctx)
	g.teardown(&events)
	if err != nil {
		g.log.Warn("Logout call failed, session discarded anyway", "error", err)
	}
	return err
}

// Restore loads the persisted credential on startup. A structurally valid
// token marks the session authenticated without a network round trip; the
// first authenticated request settles whether the server still honors it.
func (g *Guard) Restore() {
	token, err := g.store.Load()
	if err != nil || token == "" {
		return
	}

	userID := domain.TokenUserID(token)
	g.notify([]domain.Session{g.set(domain.Session{Token: token, UserID: userID, IsAuthenticated: true})})
	g.log.Info("Session restored from storage", "user_id", userID)
}

// InvalidateSession discards the session after the server rejected its
// credential. Wired as the API client's auth-error hook.
func (g *Guard) InvalidateSession() {
	g.log.Info("Session invalidated")
	var events []domain.Session
	g.teardown(&events)
	g.notify(events)
}

// CurrentUser reads the ("user") cache entry, fetching it when absent/stale.
func (g *Guard) CurrentUser(ctx context.Context) (*domain.User, error) {
	res := g.cache.Get(ctx, cache.KeyUser(), func(ctx context.Context) (interface{}, error) {
		return g.users.CurrentUser(ctx)
	}, cache.Options{StaleAfter: g.userStale})
	if res.Err != nil {
		return nil, res.Err
	}
	user, ok := res.Value.(*domain.User)
	if !ok {
		return nil, fmt.Errorf("current user not loaded")
	}
	return user, nil
}

func (g *Guard) establish(result *domain.AuthResult, events *[]domain.Session) error {
	if !domain.ValidToken(result.Token) {
		g.teardown(events)
		return domain.ErrMalformedToken
	}
	if err := g.store.Save(result.Token); err != nil {
		g.teardown(events)
		return fmt.Errorf("persist credential: %w", err)
	}

	g.cache.Invalidate(cache.KeyUser())

	userID := result.User.ID
	if userID == "" {
		userID = domain.TokenUserID(result.Token)
	}

	*events = append(*events, g.set(domain.Session{Token: result.Token, UserID: userID, IsAuthenticated: true}))
	g.log.Info("Session established", "user_id", userID)
	return nil
}

// teardown is the single failure/exit path: the token is gone, everything
// cached belonged to the dead session, and the stream must close.
func (g *Guard) teardown(events *[]domain.Session) {
	if err := g.store.Clear(); err != nil {
		g.log.Error("Failed to clear stored credential", "error", err)
	}
	g.cache.PurgeAll()
	*events = append(*events, g.set(domain.Session{}))
}

// set stores the new session value and returns it for later notification.
func (g *Guard) set(s domain.Session) domain.Session {
	g.mu.Lock()
	g.session = s
	g.mu.Unlock()
	return s
}

// notify delivers the transitions of one settled operation, in order, after
// opMu has been released. A listener may therefore start its own auth
// operation without hitting the single-flight lock.
func (g *Guard) notify(events []domain.Session) {
	if len(events) == 0 {
		return
	}
	g.mu.Lock()
	listeners := make([]func(domain.Session), len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	for _, s := range events {
		for _, fn := range listeners {
			fn(s)
		}
	}
}
