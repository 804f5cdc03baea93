package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"auction-client/internal/cache"
	"auction-client/internal/domain"
	"auction-client/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".c2ln"
}

type fakeAuthGateway struct {
	result      *domain.AuthResult
	loginErr    error
	logoutErr   error
	block       chan struct{} // when non-nil, Login waits on it
	loginCalls  int32
	logoutCalls int32
}

func (f *fakeAuthGateway) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	atomic.AddInt32(&f.loginCalls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.result, nil
}

func (f *fakeAuthGateway) Register(ctx context.Context, profile domain.Profile, password string) (*domain.AuthResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.result, nil
}

func (f *fakeAuthGateway) Logout(ctx context.Context) error {
	atomic.AddInt32(&f.logoutCalls, 1)
	return f.logoutErr
}

type fakeUserGateway struct {
	user  *domain.User
	calls int32
}

func (f *fakeUserGateway) CurrentUser(ctx context.Context) (*domain.User, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.user, nil
}

func (f *fakeUserGateway) UserStatistics(ctx context.Context) (*domain.UserStatistics, error) {
	return &domain.UserStatistics{}, nil
}

type memStore struct {
	token string
}

func (m *memStore) Save(token string) error {
	if !domain.ValidToken(token) {
		return domain.ErrMalformedToken
	}
	m.token = token
	return nil
}

func (m *memStore) Load() (string, error) {
	if m.token == "" {
		return "", nil
	}
	if !domain.ValidToken(m.token) {
		m.token = ""
		return "", domain.ErrMalformedToken
	}
	return m.token, nil
}

func (m *memStore) Clear() error {
	m.token = ""
	return nil
}

func newTestGuard(gateway *fakeAuthGateway, users *fakeUserGateway, store *memStore) (*Guard, *cache.Cache) {
	c := cache.New(cache.RetryPolicy{Attempts: 1}, logger.NewNop())
	if users == nil {
		users = &fakeUserGateway{user: &domain.User{ID: "U1"}}
	}
	return NewGuard(gateway, users, store, c, time.Minute, logger.NewNop()), c
}

func TestLoginEstablishesSession(t *testing.T) {
	token := signedToken(`{"user_id":"U1"}`)
	gateway := &fakeAuthGateway{result: &domain.AuthResult{Token: token, User: domain.User{ID: "U1"}}}
	store := &memStore{}
	guard, _ := newTestGuard(gateway, nil, store)

	var transitions []domain.Session
	guard.OnChange(func(s domain.Session) { transitions = append(transitions, s) })

	require.NoError(t, guard.Login(context.Background(), "a@b.c", "pw"))

	sess := guard.Session()
	assert.True(t, sess.IsAuthenticated)
	assert.Equal(t, "U1", sess.UserID)
	assert.Equal(t, token, store.token)

	// Reset at attempt start, then the authenticated swap.
	require.Len(t, transitions, 2)
	assert.False(t, transitions[0].IsAuthenticated)
	assert.True(t, transitions[1].IsAuthenticated)
}

func TestLoginFailurePurgesEverything(t *testing.T) {
	gateway := &fakeAuthGateway{loginErr: &domain.APIError{Status: 401, Message: "bad credentials"}}
	store := &memStore{token: signedToken(`{"user_id":"old"}`)}
	guard, c := newTestGuard(gateway, nil, store)
	c.Set(cache.KeyAuction("A1"), "stale data")

	err := guard.Login(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)

	assert.False(t, guard.Session().IsAuthenticated)
	assert.Equal(t, "", store.token)
	_, ok := c.Peek(cache.KeyAuction("A1"))
	assert.False(t, ok, "cached data belongs to the now-invalid session")
}

func TestLoginRejectsMalformedServerToken(t *testing.T) {
	gateway := &fakeAuthGateway{result: &domain.AuthResult{Token: "not-a-token"}}
	store := &memStore{}
	guard, _ := newTestGuard(gateway, nil, store)

	err := guard.Login(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, domain.ErrMalformedToken)
	assert.Equal(t, "", store.token)
	assert.False(t, guard.Session().IsAuthenticated)
}

func TestLogoutWhileLoginInFlight(t *testing.T) {
	token := signedToken(`{"user_id":"U1"}`)
	gateway := &fakeAuthGateway{
		result: &domain.AuthResult{Token: token, User: domain.User{ID: "U1"}},
		block:  make(chan struct{}),
	}
	guard, _ := newTestGuard(gateway, nil, &memStore{})

	loginDone := make(chan error, 1)
	go func() { loginDone <- guard.Login(context.Background(), "a@b.c", "pw") }()

	// Wait for the login to hold the single-flight lock.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&gateway.loginCalls) == 1
	}, time.Second, time.Millisecond)

	err := guard.Logout(context.Background())
	assert.ErrorIs(t, err, domain.ErrOperationInProgress)
	assert.Equal(t, int32(0), atomic.LoadInt32(&gateway.logoutCalls))

	close(gateway.block)
	require.NoError(t, <-loginDone)

	// Once login settled the lock is free again.
	require.NoError(t, guard.Logout(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&gateway.logoutCalls))
}

func TestListenerMayStartAuthOperation(t *testing.T) {
	token := signedToken(`{"user_id":"U1"}`)
	gateway := &fakeAuthGateway{result: &domain.AuthResult{Token: token, User: domain.User{ID: "U1"}}}
	store := &memStore{}
	guard, _ := newTestGuard(gateway, nil, store)

	// Listeners fire after the single-flight lock is released, so one may
	// itself run an auth operation without a spurious in-progress error.
	var fromListener error
	reacted := false
	guard.OnChange(func(s domain.Session) {
		if s.IsAuthenticated && !reacted {
			reacted = true
			fromListener = guard.Logout(context.Background())
		}
	})

	require.NoError(t, guard.Login(context.Background(), "a@b.c", "pw"))
	require.True(t, reacted)
	assert.NoError(t, fromListener)
	assert.False(t, guard.Session().IsAuthenticated)
	assert.Equal(t, "", store.token)
}

func TestLogoutFailureStillReachesTerminalState(t *testing.T) {
	token := signedToken(`{"user_id":"U1"}`)
	gateway := &fakeAuthGateway{
		result:    &domain.AuthResult{Token: token, User: domain.User{ID: "U1"}},
		logoutErr: errors.New("server unreachable"),
	}
	store := &memStore{}
	guard, c := newTestGuard(gateway, nil, store)
	require.NoError(t, guard.Login(context.Background(), "a@b.c", "pw"))
	c.Set(cache.KeyAuction("A1"), "data")

	err := guard.Logout(context.Background())
	require.Error(t, err)

	assert.False(t, guard.Session().IsAuthenticated)
	assert.Equal(t, "", store.token)
	_, ok := c.Peek(cache.KeyAuction("A1"))
	assert.False(t, ok)
}

func TestRestoreFromStorage(t *testing.T) {
	store := &memStore{token: signedToken(`{"user_id":"U7"}`)}
	guard, _ := newTestGuard(&fakeAuthGateway{}, nil, store)

	guard.Restore()

	sess := guard.Session()
	assert.True(t, sess.IsAuthenticated)
	assert.Equal(t, "U7", sess.UserID)
}

func TestRestoreWithMalformedStoredToken(t *testing.T) {
	store := &memStore{token: "corrupted"}
	guard, _ := newTestGuard(&fakeAuthGateway{}, nil, store)

	guard.Restore()

	assert.False(t, guard.Session().IsAuthenticated)
	assert.Equal(t, "", store.token, "malformed token is purged from storage")
}

func TestCurrentUserCachedBetweenReads(t *testing.T) {
	users := &fakeUserGateway{user: &domain.User{ID: "U1", Name: "Ann"}}
	guard, _ := newTestGuard(&fakeAuthGateway{}, users, &memStore{})

	first, err := guard.CurrentUser(context.Background())
	require.NoError(t, err)
	second, err := guard.CurrentUser(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Ann", first.Name)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&users.calls))
}

func TestInvalidateSession(t *testing.T) {
	token := signedToken(`{"user_id":"U1"}`)
	gateway := &fakeAuthGateway{result: &domain.AuthResult{Token: token, User: domain.User{ID: "U1"}}}
	store := &memStore{}
	guard, _ := newTestGuard(gateway, nil, store)
	require.NoError(t, guard.Login(context.Background(), "a@b.c", "pw"))

	guard.InvalidateSession()

	assert.False(t, guard.Session().IsAuthenticated)
	assert.Equal(t, "", store.token)
}
