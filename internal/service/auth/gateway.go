// internal/service/auth/gateway.go
package auth

import (
	"context"

	"objettrouve-service/internal/domain/auth"
	"objettrouve-service/internal/pkg/cognito"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/jwt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.uber.org/zap"
)

// Gateway wraps every identity lifecycle operation of the identity provider.
// Methods never return errors: failures are reported through auth.Result.
type Gateway interface {
	Register(ctx context.Context, req *auth.RegisterRequest) *auth.Result
	ConfirmRegistration(ctx context.Context, email, code string) *auth.Result
	ResendConfirmation(ctx context.Context, email string) *auth.Result
	Authenticate(ctx context.Context, email, password string) *auth.Result
	CompleteChallenge(ctx context.Context, email, challengeSession, newPassword string) *auth.Result
	RequestPasswordReset(ctx context.Context, email string) *auth.Result
	ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) *auth.Result
	Refresh(ctx context.Context, username, refreshToken string) *auth.Result
	FetchIdentity(ctx context.Context, accessToken string) *auth.Result
	SignOut(ctx context.Context, accessToken string) *auth.Result
}

// CognitoAPI is the part of the Cognito user pool client the gateway uses.
// *cognitoidentityprovider.Client satisfies it.
type CognitoAPI interface {
	SignUp(ctx context.Context, params *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, params *cip.RespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error)
	ForgotPassword(ctx context.Context, params *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, params *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	GetUser(ctx context.Context, params *cip.GetUserInput, optFns ...func(*cip.Options)) (*cip.GetUserOutput, error)
	GlobalSignOut(ctx context.Context, params *cip.GlobalSignOutInput, optFns ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
}

// IdentityVerifier turns a raw ID token into a trusted Identity.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, rawIDToken string) (*auth.Identity, error)
}

const (
	msgRegistered        = "Registration successful. Check your email for a confirmation code."
	msgRegisteredActive  = "Registration successful. You can now sign in."
	msgConfirmed         = "Your email is confirmed. You can now sign in."
	msgCodeResent        = "If an account exists for this email, a new confirmation code has been sent."
	msgResetRequested    = "If an account exists for this email, a password reset code has been sent."
	msgPasswordReset     = "Your password has been reset. You can now sign in."
	msgNewPasswordNeeded = "A new password is required to finish signing in."
	msgSignedOut         = "Signed out."
)

type CognitoGateway struct {
	api      CognitoAPI
	signer   *cognito.Signer
	verifier IdentityVerifier
	logger   *zap.Logger
}

// NewCognitoGateway builds the gateway. A nil verifier decodes ID tokens without
// checking their signature.
func NewCognitoGateway(api CognitoAPI, signer *cognito.Signer, verifier IdentityVerifier, logger *zap.Logger) *CognitoGateway {
	return &CognitoGateway{
		api:      api,
		signer:   signer,
		verifier: verifier,
		logger:   logger,
	}
}

// ========== Registration ==========

func (g *CognitoGateway) Register(ctx context.Context, req *auth.RegisterRequest) *auth.Result {
	attrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(req.Email)},
	}
	if req.GivenName != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("given_name"), Value: aws.String(req.GivenName)})
	}
	if req.FamilyName != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("family_name"), Value: aws.String(req.FamilyName)})
	}

	out, err := g.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(g.signer.ClientID()),
		Username:       aws.String(req.Email),
		Password:       aws.String(req.Password),
		SecretHash:     aws.String(g.signer.Sign(req.Email)),
		UserAttributes: attrs,
	})
	if err != nil {
		return g.fail(opRegister, req.Email, err)
	}

	msg := msgRegistered
	if out.UserConfirmed {
		msg = msgRegisteredActive
	}

	return &auth.Result{
		Success: true,
		Identity: &auth.Identity{
			Subject:    aws.ToString(out.UserSub),
			Email:      req.Email,
			GivenName:  req.GivenName,
			FamilyName: req.FamilyName,
		},
		Message: msg,
	}
}

func (g *CognitoGateway) ConfirmRegistration(ctx context.Context, email, code string) *auth.Result {
	_, err := g.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(g.signer.ClientID()),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		SecretHash:       aws.String(g.signer.Sign(email)),
	})
	if err != nil {
		return g.fail(opConfirmRegistration, email, err)
	}
	return &auth.Result{Success: true, Message: msgConfirmed}
}

// ResendConfirmation never reveals whether the account exists.
func (g *CognitoGateway) ResendConfirmation(ctx context.Context, email string) *auth.Result {
	_, err := g.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(g.signer.ClientID()),
		Username:   aws.String(email),
		SecretHash: aws.String(g.signer.Sign(email)),
	})
	if err != nil {
		g.logger.Warn("resend confirmation code failed",
			zap.String("email", email),
			zap.Error(err),
		)
	}
	return &auth.Result{Success: true, Message: msgCodeResent}
}

// ========== Sign-in ==========

func (g *CognitoGateway) Authenticate(ctx context.Context, email, password string) *auth.Result {
	out, err := g.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(g.signer.ClientID()),
		AuthParameters: map[string]string{
			"USERNAME":    email,
			"PASSWORD":    password,
			"SECRET_HASH": g.signer.Sign(email),
		},
	})
	if err != nil {
		return g.fail(opAuthenticate, email, err)
	}

	return g.authOutcome(ctx, email, out.AuthenticationResult, out.ChallengeName, out.Session)
}

func (g *CognitoGateway) CompleteChallenge(ctx context.Context, email, challengeSession, newPassword string) *auth.Result {
	out, err := g.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName: types.ChallengeNameTypeNewPasswordRequired,
		ClientId:      aws.String(g.signer.ClientID()),
		Session:       aws.String(challengeSession),
		ChallengeResponses: map[string]string{
			"USERNAME":     email,
			"NEW_PASSWORD": newPassword,
			"SECRET_HASH":  g.signer.Sign(email),
		},
	})
	if err != nil {
		return g.fail(opCompleteChallenge, email, err)
	}

	return g.authOutcome(ctx, email, out.AuthenticationResult, out.ChallengeName, out.Session)
}

// Refresh exchanges a refresh token. Cognito does not rotate refresh tokens,
// so the input token is echoed back in the session.
func (g *CognitoGateway) Refresh(ctx context.Context, username, refreshToken string) *auth.Result {
	out, err := g.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(g.signer.ClientID()),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
			"SECRET_HASH":   g.signer.Sign(username),
		},
	})
	if err != nil {
		return g.fail(opRefresh, username, err)
	}
	if out.AuthenticationResult == nil {
		return failure(xerrors.KindProviderError, "Token refresh did not return new tokens.")
	}

	result := g.authOutcome(ctx, username, out.AuthenticationResult, "", nil)
	if result.Session != nil && result.Session.RefreshToken == "" {
		result.Session.RefreshToken = refreshToken
	}
	return result
}

func (g *CognitoGateway) authOutcome(
	ctx context.Context,
	email string,
	tokens *types.AuthenticationResultType,
	challenge types.ChallengeNameType,
	challengeSession *string,
) *auth.Result {
	if tokens == nil {
		if challenge == types.ChallengeNameTypeNewPasswordRequired {
			return &auth.Result{
				Success: false,
				Challenge: &auth.Challenge{
					Kind:     auth.ChallengeNewPasswordRequired,
					Session:  aws.ToString(challengeSession),
					Username: email,
				},
				Message: msgNewPasswordNeeded,
			}
		}
		g.logger.Warn("unsupported sign-in challenge",
			zap.String("email", email),
			zap.String("challenge", string(challenge)),
		)
		return failure(xerrors.KindProviderError, "This account requires a sign-in step that is not supported.")
	}

	session := &auth.CredentialSession{
		AccessToken:  aws.ToString(tokens.AccessToken),
		IDToken:      aws.ToString(tokens.IdToken),
		RefreshToken: aws.ToString(tokens.RefreshToken),
		ExpiresIn:    tokens.ExpiresIn,
		TokenType:    aws.ToString(tokens.TokenType),
	}

	identity, err := g.identityFromToken(ctx, session.IDToken)
	if err != nil {
		g.logger.Error("failed to read identity from id token",
			zap.String("email", email),
			zap.Error(err),
		)
		return failure(xerrors.KindOf(err), "Sign-in could not be completed. Please try again.")
	}

	return &auth.Result{Success: true, Identity: identity, Session: session}
}

func (g *CognitoGateway) identityFromToken(ctx context.Context, idToken string) (*auth.Identity, error) {
	if g.verifier != nil {
		return g.verifier.VerifyIdentity(ctx, idToken)
	}
	return jwt.ParseIdentity(idToken)
}

// ========== Password reset ==========

// RequestPasswordReset always reports success so callers cannot enumerate accounts.
func (g *CognitoGateway) RequestPasswordReset(ctx context.Context, email string) *auth.Result {
	_, err := g.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(g.signer.ClientID()),
		Username:   aws.String(email),
		SecretHash: aws.String(g.signer.Sign(email)),
	})
	if err != nil {
		g.logger.Warn("forgot password request failed",
			zap.String("email", email),
			zap.String("kind", string(classify(opRequestPasswordReset, err).Kind)),
			zap.Error(err),
		)
	}
	return &auth.Result{Success: true, Message: msgResetRequested}
}

func (g *CognitoGateway) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) *auth.Result {
	_, err := g.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(g.signer.ClientID()),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       aws.String(g.signer.Sign(email)),
	})
	if err != nil {
		return g.fail(opConfirmPasswordReset, email, err)
	}
	return &auth.Result{Success: true, Message: msgPasswordReset}
}

// ========== Current user ==========

func (g *CognitoGateway) FetchIdentity(ctx context.Context, accessToken string) *auth.Result {
	if accessToken == "" {
		return failure(xerrors.KindUnauthenticated, msgUnauthenticated)
	}

	out, err := g.api.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		return g.fail(opFetchIdentity, "", err)
	}

	identity := &auth.Identity{}
	for _, attr := range out.UserAttributes {
		value := aws.ToString(attr.Value)
		switch aws.ToString(attr.Name) {
		case "sub":
			identity.Subject = value
		case "email":
			identity.Email = value
		case "given_name":
			identity.GivenName = value
		case "family_name":
			identity.FamilyName = value
		case "email_verified":
			identity.EmailVerified = value == "true"
		}
	}
	if identity.Subject == "" {
		identity.Subject = aws.ToString(out.Username)
	}

	return &auth.Result{Success: true, Identity: identity}
}

// SignOut revokes every token the provider issued for the access token's user.
func (g *CognitoGateway) SignOut(ctx context.Context, accessToken string) *auth.Result {
	if accessToken == "" {
		return failure(xerrors.KindUnauthenticated, msgUnauthenticated)
	}

	if _, err := g.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{AccessToken: aws.String(accessToken)}); err != nil {
		return g.fail(opSignOut, "", err)
	}
	return &auth.Result{Success: true, Message: msgSignedOut}
}

func (g *CognitoGateway) fail(op operation, email string, err error) *auth.Result {
	ae := classify(op, err)
	g.logger.Warn("identity provider call failed",
		zap.String("operation", string(op)),
		zap.String("email", email),
		zap.String("kind", string(ae.Kind)),
		zap.Error(err),
	)
	return failure(ae.Kind, ae.Message)
}

func failure(kind xerrors.Kind, message string) *auth.Result {
	if kind == "" {
		kind = xerrors.KindProviderError
	}
	return &auth.Result{Success: false, Code: string(kind), Message: message}
}
