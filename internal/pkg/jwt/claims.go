// internal/pkg/jwt/claims.go
package jwt

import (
	"encoding/json"
	"strings"

	"objettrouve-service/internal/domain/auth"
)

// IdentityClaims is the subset of an ID token payload projected into auth.Identity.
type IdentityClaims struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
	EmailVerified flexBool `json:"email_verified"`
	Groups        []string `json:"cognito:groups,omitempty"`
}

// Identity projects the claims into an auth.Identity
func (c *IdentityClaims) Identity() *auth.Identity {
	return &auth.Identity{
		Subject:       c.Subject,
		Email:         c.Email,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		EmailVerified: bool(c.EmailVerified),
		Roles:         c.Groups,
	}
}

// flexBool accepts both JSON booleans and the "true"/"false" strings some
// providers emit for email_verified.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		*b = flexBool(strings.EqualFold(t, "true"))
	default:
		*b = false
	}
	return nil
}
