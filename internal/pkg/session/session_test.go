package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"objettrouve-service/internal/domain/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

var testIdentity = &auth.Identity{
	Subject:       "sub-1",
	Email:         "owner@example.com",
	GivenName:     "Jo",
	EmailVerified: true,
	Roles:         []string{"user"},
}

func TestManager_CreateGetInvalidate(t *testing.T) {
	_, client := newTestRedis(t)
	m := NewManager(client, zap.NewNop())
	ctx := context.Background()

	data := NewSessionData("sid-1", testIdentity, "10.0.0.1", "test-agent", time.Hour)
	require.NoError(t, m.CreateSession(ctx, data))

	got, err := m.GetSession(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, testIdentity.Subject, got.Subject)
	assert.Equal(t, testIdentity, got.Identity())

	removed, err := m.InvalidateSession(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", removed.ID)

	_, err = m.GetSession(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	removed, err = m.InvalidateSession(ctx, "sid-1")
	assert.NoError(t, err)
	assert.Nil(t, removed)
}

func TestManager_RejectsExpiredSession(t *testing.T) {
	_, client := newTestRedis(t)
	m := NewManager(client, zap.NewNop())

	data := NewSessionData("sid-old", testIdentity, "", "", -time.Minute)
	assert.Error(t, m.CreateSession(context.Background(), data))
}

func TestManager_SessionExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	m := NewManager(client, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, NewSessionData("sid-2", testIdentity, "", "", time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := m.GetSession(ctx, "sid-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_InvalidateAllForSubject(t *testing.T) {
	_, client := newTestRedis(t)
	m := NewManager(client, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.CreateSession(ctx, NewSessionData(id, testIdentity, "", "", time.Hour)))
	}
	other := &auth.Identity{Subject: "sub-2", Email: "other@example.com"}
	require.NoError(t, m.CreateSession(ctx, NewSessionData("d", other, "", "", time.Hour)))

	list, err := m.ListForSubject(ctx, "sub-1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	n, err := m.InvalidateAllForSubject(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err = m.ListForSubject(ctx, "sub-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = m.GetSession(ctx, "d")
	assert.NoError(t, err)
}

func TestChallengeStore_SingleUse(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewChallengeStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "opaque-session", "Owner@Example.com"))

	assert.NoError(t, s.Consume(ctx, "opaque-session", "owner@example.com"))
	assert.ErrorIs(t, s.Consume(ctx, "opaque-session", "owner@example.com"), ErrChallengeNotFound)
}

func TestChallengeStore_WrongUserAndExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewChallengeStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "s1", "a@example.com"))
	assert.ErrorIs(t, s.Consume(ctx, "s1", "b@example.com"), ErrChallengeNotFound)
	// the owner can still answer after a mismatched attempt
	assert.NoError(t, s.Consume(ctx, "s1", "A@example.com"))
	assert.ErrorIs(t, s.Consume(ctx, "s1", "a@example.com"), ErrChallengeNotFound)

	require.NoError(t, s.Put(ctx, "s2", "a@example.com"))
	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, s.Consume(ctx, "s2", "a@example.com"), ErrChallengeNotFound)
}

func TestRateLimiter_Login(t *testing.T) {
	mr, client := newTestRedis(t)
	r := NewRateLimiter(client, DefaultLimits)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		allowed, remaining, err := r.CheckLoginAttempt(ctx, "1.2.3.4", "a@example.com")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 5-i, remaining)
	}

	allowed, remaining, err := r.CheckLoginAttempt(ctx, "1.2.3.4", "A@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	mr.FastForward(16 * time.Minute)
	left, err := r.GetRemainingAttempts(ctx, "1.2.3.4", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), left)
}

func TestRateLimiter_ResetClearsCounter(t *testing.T) {
	_, client := newTestRedis(t)
	r := NewRateLimiter(client, DefaultLimits)
	ctx := context.Background()

	_, _, err := r.CheckLoginAttempt(ctx, "ip", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, r.ResetLoginAttempts(ctx, "ip", "a@example.com"))

	left, err := r.GetRemainingAttempts(ctx, "ip", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), left)
}

func TestRateLimiter_PasswordReset(t *testing.T) {
	_, client := newTestRedis(t)
	r := NewRateLimiter(client, DefaultLimits)
	ctx := context.Background()

	for range 3 {
		allowed, err := r.CheckPasswordResetAttempt(ctx, "a@example.com")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := r.CheckPasswordResetAttempt(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiter_WindowAlwaysExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	r := NewRateLimiter(client, DefaultLimits)
	ctx := context.Background()

	allowed, err := r.CheckResendAttempt(ctx, "A@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, time.Hour, mr.TTL("ratelimit:resend:a@example.com"))

	// a counter left without a TTL gets one on the next hit
	mr.Set("ratelimit:password_reset:b@example.com", "7")
	allowed, err = r.CheckPasswordResetAttempt(ctx, "b@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Hour, mr.TTL("ratelimit:password_reset:b@example.com"))

	mr.FastForward(time.Hour + time.Second)
	allowed, err = r.CheckPasswordResetAttempt(ctx, "b@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	expires := time.Now().Add(time.Hour)
	SetCookie(rec, "abc", expires, CookieOptions{Secure: true})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	rec = httptest.NewRecorder()
	ClearCookie(rec, CookieOptions{})
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestGenerateID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id, err := GenerateID()
		require.NoError(t, err)
		assert.Len(t, id, 43)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestPublicID(t *testing.T) {
	id := PublicID("sid-1")
	assert.Len(t, id, 16)
	assert.Equal(t, id, PublicID("sid-1"))
	assert.NotEqual(t, id, PublicID("sid-2"))
}
