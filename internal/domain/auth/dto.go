// internal/domain/auth/dto.go
package auth

// RegisterRequest for account registration
type RegisterRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// ConfirmRegistrationRequest carries the code mailed after sign-up
type ConfirmRegistrationRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// ResendConfirmationRequest asks for a new sign-up code
type ResendConfirmationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SignInRequest for email/password sign-in
type SignInRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// CompleteChallengeRequest answers a NEW_PASSWORD_REQUIRED challenge
type CompleteChallengeRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Session     string `json:"session" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

// ForgotPasswordRequest for password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest confirms a password reset with the mailed code
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// RefreshRequest exchanges a refresh token for new tokens.
// Username is the subject the refresh token was issued to.
type RefreshRequest struct {
	Username     string `json:"username" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}
