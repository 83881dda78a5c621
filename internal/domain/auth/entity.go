// internal/domain/auth/entity.go
package auth

import "time"

// ChallengeKind names an additional step the identity provider requires before sign-in completes.
type ChallengeKind string

const (
	ChallengeNewPasswordRequired ChallengeKind = "NEW_PASSWORD_REQUIRED"
)

// Identity is the set of facts known about a signed-in person.
// It never carries credentials.
type Identity struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	GivenName     string   `json:"given_name,omitempty"`
	FamilyName    string   `json:"family_name,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles,omitempty"`
}

// FullName joins given and family names
func (i *Identity) FullName() string {
	switch {
	case i.GivenName == "":
		return i.FamilyName
	case i.FamilyName == "":
		return i.GivenName
	}
	return i.GivenName + " " + i.FamilyName
}

// HasRole reports whether the identity carries role
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CredentialSession is the token bundle issued by the identity provider.
// It is held by the client; the server never persists it.
type CredentialSession struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int32  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Challenge is a pending sign-in step. Session is opaque and single-use.
type Challenge struct {
	Kind     ChallengeKind `json:"kind"`
	Session  string        `json:"session"`
	Username string        `json:"username"`
}

// Result is the uniform outcome of every gateway operation.
type Result struct {
	Success   bool               `json:"success"`
	Identity  *Identity          `json:"identity,omitempty"`
	Session   *CredentialSession `json:"session,omitempty"`
	Challenge *Challenge         `json:"challenge,omitempty"`
	Message   string             `json:"message,omitempty"`
	Code      string             `json:"code,omitempty"`
}

// IsChallenge reports whether the result is a pending challenge rather than a failure
func (r *Result) IsChallenge() bool {
	return r != nil && !r.Success && r.Challenge != nil
}

// User is the local record kept for every identity that has signed in.
type User struct {
	ID            string     `json:"id"`
	CognitoSub    string     `json:"cognito_sub"`
	Email         string     `json:"email"`
	GivenName     string     `json:"given_name"`
	FamilyName    string     `json:"family_name"`
	EmailVerified bool       `json:"email_verified"`
	Roles         []string   `json:"roles"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}
