// internal/service/auth/service.go
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/session"

	"go.uber.org/zap"
)

// UserStore keeps the local users table in step with the identity provider.
type UserStore interface {
	UpsertFromIdentity(ctx context.Context, identity *auth.Identity, roles []string) (*auth.User, error)
	GrantRoleByEmail(ctx context.Context, email, role string) (bool, error)
	FindBySubject(ctx context.Context, subject string) (*auth.User, error)
}

// SessionNotifier pushes session events to open client connections.
type SessionNotifier interface {
	ForceLogout(subject, sessionID, reason string)
	SessionChanged(subject, reason string)
}

// Observer records the outcome of auth operations.
type Observer interface {
	ObserveAuth(operation, outcome string)
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Options tunes the AuthService.
type Options struct {
	SessionTTL  time.Duration
	AdminEmails []string
}

type AuthService struct {
	gateway     Gateway
	sessions    *session.Manager
	challenges  *session.ChallengeStore
	rateLimiter *session.RateLimiter
	users       UserStore
	notifier    SessionNotifier
	observer    Observer
	opts        Options
	logger      *zap.Logger
}

// NewAuthService wires the auth use cases. users, notifier and observer may be nil.
func NewAuthService(
	gateway Gateway,
	sessions *session.Manager,
	challenges *session.ChallengeStore,
	rateLimiter *session.RateLimiter,
	users UserStore,
	notifier SessionNotifier,
	observer Observer,
	opts Options,
	logger *zap.Logger,
) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		gateway:     gateway,
		sessions:    sessions,
		challenges:  challenges,
		rateLimiter: rateLimiter,
		users:       users,
		notifier:    notifier,
		observer:    observer,
		opts:        opts,
		logger:      logger,
	}
}

// ========== Registration ==========

func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest) *auth.Result {
	result := s.gateway.Register(ctx, req)
	s.observe("register", result)
	return result
}

func (s *AuthService) ConfirmRegistration(ctx context.Context, req *auth.ConfirmRegistrationRequest) *auth.Result {
	result := s.gateway.ConfirmRegistration(ctx, req.Email, req.Code)
	s.observe("confirm_registration", result)
	return result
}

// ResendConfirmation is throttled per email; throttled calls still look successful.
func (s *AuthService) ResendConfirmation(ctx context.Context, req *auth.ResendConfirmationRequest) *auth.Result {
	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.CheckResendAttempt(ctx, req.Email)
		if err != nil {
			s.logger.Error("rate limiter error", zap.Error(err))
		} else if !allowed {
			s.logger.Warn("confirmation resend throttled", zap.String("email", req.Email))
			return &auth.Result{Success: true, Message: msgCodeResent}
		}
	}

	result := s.gateway.ResendConfirmation(ctx, req.Email)
	s.observe("resend_confirmation", result)
	return result
}

// ========== Sign-in ==========

// SignIn authenticates with the provider. On success it opens a server session;
// on a challenge it records the challenge so it can be answered exactly once.
func (s *AuthService) SignIn(ctx context.Context, req *auth.SignInRequest) (*auth.Result, *session.SessionData) {
	if s.rateLimiter != nil {
		allowed, _, err := s.rateLimiter.CheckLoginAttempt(ctx, req.IPAddress, req.Email)
		if err != nil {
			s.logger.Error("rate limiter error", zap.Error(err))
		} else if !allowed {
			result := failure(xerrors.KindTooManyRequests, "Too many sign-in attempts. Please try again in 15 minutes.")
			s.observe("sign_in", result)
			return result, nil
		}
	}

	result := s.gateway.Authenticate(ctx, req.Email, req.Password)
	s.observe("sign_in", result)

	if result.IsChallenge() {
		if err := s.challenges.Put(ctx, result.Challenge.Session, req.Email); err != nil {
			s.logger.Error("failed to record sign-in challenge",
				zap.String("email", req.Email),
				zap.Error(err),
			)
		}
		return result, nil
	}
	if !result.Success {
		return result, nil
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.ResetLoginAttempts(ctx, req.IPAddress, req.Email); err != nil {
			s.logger.Warn("failed to reset login attempts", zap.Error(err))
		}
	}

	return result, s.establishSession(ctx, result, req.IPAddress, req.UserAgent)
}

// CompleteChallenge answers a NEW_PASSWORD_REQUIRED challenge.
func (s *AuthService) CompleteChallenge(ctx context.Context, req *auth.CompleteChallengeRequest) (*auth.Result, *session.SessionData) {
	if err := s.challenges.Consume(ctx, req.Session, req.Email); err != nil {
		if errors.Is(err, session.ErrChallengeNotFound) {
			result := failure(xerrors.KindExpiredSession, "Your sign-in session has expired. Please sign in again.")
			s.observe("complete_challenge", result)
			return result, nil
		}
		// The provider still validates the session token.
		s.logger.Error("challenge store unavailable", zap.Error(err))
	}

	result := s.gateway.CompleteChallenge(ctx, req.Email, req.Session, req.NewPassword)
	s.observe("complete_challenge", result)

	if !result.Success {
		if result.Code == string(xerrors.KindInvalidPassword) {
			// the provider session is still valid; allow another attempt
			if err := s.challenges.Put(ctx, req.Session, req.Email); err != nil {
				s.logger.Error("failed to re-arm challenge", zap.Error(err))
			}
		}
		return result, nil
	}

	return result, s.establishSession(ctx, result, req.IPAddress, req.UserAgent)
}

func (s *AuthService) Refresh(ctx context.Context, req *auth.RefreshRequest) *auth.Result {
	result := s.gateway.Refresh(ctx, req.Username, req.RefreshToken)
	s.observe("refresh", result)
	return result
}

// establishSession syncs the user record and opens a server session.
// Failures are logged; the provider tokens in result remain usable.
func (s *AuthService) establishSession(ctx context.Context, result *auth.Result, ipAddress, userAgent string) *session.SessionData {
	identity := result.Identity
	identity.Roles = s.syncUser(ctx, identity)

	id, err := session.GenerateID()
	if err != nil {
		s.logger.Error("failed to generate session id", zap.Error(err))
		return nil
	}

	data := session.NewSessionData(id, identity, ipAddress, userAgent, s.opts.SessionTTL)
	if err := s.sessions.CreateSession(ctx, data); err != nil {
		s.logger.Error("failed to create server session",
			zap.String("sub", identity.Subject),
			zap.Error(err),
		)
		return nil
	}

	if s.notifier != nil {
		s.notifier.SessionChanged(identity.Subject, "signed in")
	}

	s.logger.Info("user signed in",
		zap.String("sub", identity.Subject),
		zap.String("email", identity.Email),
	)
	return data
}

// syncUser upserts the users row and returns the effective roles.
func (s *AuthService) syncUser(ctx context.Context, identity *auth.Identity) []string {
	roles := mergeRoles(identity.Roles, s.defaultRoles(identity.Email))
	if s.users == nil {
		return roles
	}

	user, err := s.users.UpsertFromIdentity(ctx, identity, roles)
	if err != nil {
		s.logger.Warn("failed to sync user record",
			zap.String("sub", identity.Subject),
			zap.Error(err),
		)
		return roles
	}
	return mergeRoles(roles, user.Roles)
}

func (s *AuthService) defaultRoles(email string) []string {
	roles := []string{RoleUser}
	for _, admin := range s.opts.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			roles = append(roles, RoleAdmin)
			break
		}
	}
	return roles
}

func mergeRoles(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, r := range list {
			if r != "" && !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// ========== Password reset ==========

// ForgotPassword always returns a success-shaped result.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) *auth.Result {
	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.CheckPasswordResetAttempt(ctx, email)
		if err != nil {
			s.logger.Error("rate limiter error", zap.Error(err))
		} else if !allowed {
			s.logger.Warn("password reset throttled", zap.String("email", email))
			return &auth.Result{Success: true, Message: msgResetRequested}
		}
	}

	result := s.gateway.RequestPasswordReset(ctx, email)
	s.observe("forgot_password", result)
	return result
}

func (s *AuthService) ResetPassword(ctx context.Context, req *auth.ResetPasswordRequest) *auth.Result {
	result := s.gateway.ConfirmPasswordReset(ctx, req.Email, req.Code, req.NewPassword)
	s.observe("reset_password", result)
	return result
}

// ========== Current user & sign-out ==========

// ValidateSession returns the live server session for a cookie value
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*session.SessionData, error) {
	data, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.TouchSession(ctx, data); err != nil {
		s.logger.Debug("failed to touch session", zap.Error(err))
	}
	return data, nil
}

// CurrentUser resolves the caller's identity: the server session first, then
// a provider access token. The error carries KindUnauthenticated when neither works.
func (s *AuthService) CurrentUser(ctx context.Context, sessionID, accessToken string) (*auth.Identity, error) {
	if sessionID != "" {
		data, err := s.ValidateSession(ctx, sessionID)
		if err == nil {
			return data.Identity(), nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			s.logger.Error("failed to read session", zap.Error(err))
		}
	}

	if accessToken != "" {
		result := s.gateway.FetchIdentity(ctx, accessToken)
		s.observe("fetch_identity", result)
		if result.Success {
			return result.Identity, nil
		}
		return nil, xerrors.New(xerrors.Kind(result.Code), result.Message)
	}

	return nil, xerrors.New(xerrors.KindUnauthenticated, msgUnauthenticated)
}

// SignOut is best-effort: provider tokens are revoked when an access token is
// supplied and the server session is dropped. Failures are only logged.
func (s *AuthService) SignOut(ctx context.Context, sessionID, accessToken string) {
	if accessToken != "" {
		if result := s.gateway.SignOut(ctx, accessToken); !result.Success {
			s.logger.Warn("provider sign-out failed",
				zap.String("kind", result.Code),
			)
		}
	}

	if sessionID == "" {
		return
	}

	data, err := s.sessions.InvalidateSession(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to invalidate session", zap.Error(err))
		return
	}
	if data != nil && s.notifier != nil {
		s.notifier.ForceLogout(data.Subject, data.ID, "signed out")
	}
	if s.observer != nil {
		s.observer.ObserveAuth("sign_out", "success")
	}
}

// SignOutEverywhere drops every server session of subject
func (s *AuthService) SignOutEverywhere(ctx context.Context, subject string) (int, error) {
	n, err := s.sessions.InvalidateAllForSubject(ctx, subject)
	if err != nil {
		return n, xerrors.Wrap(err, "failed to invalidate sessions")
	}
	if s.notifier != nil {
		s.notifier.ForceLogout(subject, "", "signed out everywhere")
	}
	return n, nil
}

// ListSessions returns the subject's live server sessions
func (s *AuthService) ListSessions(ctx context.Context, subject string) ([]*session.SessionData, error) {
	return s.sessions.ListForSubject(ctx, subject)
}

// Profile returns the local user record of subject. xerrors.ErrNotFound means
// the subject has never completed a sign-in against this backend.
func (s *AuthService) Profile(ctx context.Context, subject string) (*auth.User, error) {
	if s.users == nil {
		return nil, xerrors.ErrNotFound
	}
	return s.users.FindBySubject(ctx, subject)
}

func (s *AuthService) observe(op string, result *auth.Result) {
	if s.observer == nil {
		return
	}
	outcome := "success"
	switch {
	case result.IsChallenge():
		outcome = "challenge"
	case !result.Success:
		outcome = result.Code
	}
	s.observer.ObserveAuth(op, outcome)
}
