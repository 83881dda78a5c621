// internal/service/auth/admins.go
package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// EnsureAdminRoles grants the admin role to every configured admin email that
// already has a user record. Accounts that have never signed in get the role
// on their first sign-in instead. Called on startup.
func (s *AuthService) EnsureAdminRoles(ctx context.Context) error {
	if s.users == nil || len(s.opts.AdminEmails) == 0 {
		return nil
	}

	var failed []string
	for _, email := range s.opts.AdminEmails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}

		granted, err := s.users.GrantRoleByEmail(ctx, email, RoleAdmin)
		if err != nil {
			s.logger.Error("failed to grant admin role",
				zap.String("email", email),
				zap.Error(err),
			)
			failed = append(failed, email)
			continue
		}
		if granted {
			s.logger.Info("admin role granted", zap.String("email", email))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to grant admin role to %s", strings.Join(failed, ", "))
	}
	return nil
}
