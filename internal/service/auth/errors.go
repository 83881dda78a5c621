// internal/service/auth/errors.go
package auth

import (
	"context"
	"errors"
	"strings"

	xerrors "objettrouve-service/internal/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
)

type operation string

const (
	opRegister             operation = "register"
	opConfirmRegistration  operation = "confirm_registration"
	opAuthenticate         operation = "authenticate"
	opCompleteChallenge    operation = "complete_challenge"
	opRequestPasswordReset operation = "request_password_reset"
	opConfirmPasswordReset operation = "confirm_password_reset"
	opRefresh              operation = "refresh"
	opFetchIdentity        operation = "fetch_identity"
	opSignOut              operation = "sign_out"
)

const (
	msgUnauthenticated     = "You are not signed in."
	msgProviderUnavailable = "The authentication service is unavailable. Please try again later."
	msgProviderError       = "Something went wrong. Please try again."
)

// UserPasswordAuthRemediation is shown when the app client does not allow
// USER_PASSWORD_AUTH. It is aimed at operators, not end users.
const UserPasswordAuthRemediation = `Sign-in is not enabled for this application. An administrator must enable the USER_PASSWORD_AUTH flow:
1. Open the Amazon Cognito console and select the user pool.
2. Go to "App integration" > "App clients" and open the app client used by this service.
3. Under "Authentication flows", click "Edit" and enable ALLOW_USER_PASSWORD_AUTH and ALLOW_REFRESH_TOKEN_AUTH.
4. Save the changes and retry the sign-in.`

// classify maps a Cognito SDK error to a Kind and a user-facing message.
func classify(op operation, err error) *xerrors.AuthError {
	if err == nil {
		return nil
	}

	var (
		notAuthorized   *types.NotAuthorizedException
		userNotFound    *types.UserNotFoundException
		usernameExists  *types.UsernameExistsException
		invalidParam    *types.InvalidParameterException
		invalidPassword *types.InvalidPasswordException
		codeMismatch    *types.CodeMismatchException
		expiredCode     *types.ExpiredCodeException
		notConfirmed    *types.UserNotConfirmedException
		resetRequired   *types.PasswordResetRequiredException
		tooMany         *types.TooManyRequestsException
		limitExceeded   *types.LimitExceededException
		tooManyFailed   *types.TooManyFailedAttemptsException
		internal        *types.InternalErrorException
		apiErr          smithy.APIError
	)

	switch {
	case errors.As(err, &invalidParam):
		if authFlowDisabled(invalidParam.ErrorMessage()) {
			return xerrors.WrapKind(xerrors.KindConfigurationRequired, UserPasswordAuthRemediation, err)
		}
		return xerrors.WrapKind(xerrors.KindInvalidParameter, providerMessage(invalidParam.ErrorMessage(), "Some of the information provided is invalid."), err)

	case errors.As(err, &notAuthorized):
		msg := notAuthorized.ErrorMessage()
		switch {
		case authFlowDisabled(msg):
			return xerrors.WrapKind(xerrors.KindConfigurationRequired, UserPasswordAuthRemediation, err)
		case op == opCompleteChallenge && strings.Contains(strings.ToLower(msg), "session"):
			return xerrors.WrapKind(xerrors.KindExpiredSession, "Your sign-in session has expired. Please sign in again.", err)
		case op == opFetchIdentity || op == opSignOut:
			return xerrors.WrapKind(xerrors.KindUnauthenticated, msgUnauthenticated, err)
		case op == opRefresh:
			return xerrors.WrapKind(xerrors.KindNotAuthorized, "Your session has expired. Please sign in again.", err)
		}
		return xerrors.WrapKind(xerrors.KindNotAuthorized, "Incorrect email or password.", err)

	case errors.As(err, &userNotFound):
		return xerrors.WrapKind(xerrors.KindUserNotFound, "No account was found for this email.", err)

	case errors.As(err, &usernameExists):
		return xerrors.WrapKind(xerrors.KindUsernameExists, "An account with this email already exists.", err)

	case errors.As(err, &invalidPassword):
		return xerrors.WrapKind(xerrors.KindInvalidPassword, providerMessage(invalidPassword.ErrorMessage(), "The password does not meet the requirements."), err)

	case errors.As(err, &codeMismatch):
		return xerrors.WrapKind(xerrors.KindInvalidCode, "The verification code is incorrect.", err)

	case errors.As(err, &expiredCode):
		return xerrors.WrapKind(xerrors.KindExpiredCode, "The verification code has expired. Please request a new one.", err)

	case errors.As(err, &notConfirmed):
		return xerrors.WrapKind(xerrors.KindUserNotConfirmed, "Please confirm your email address before signing in.", err)

	case errors.As(err, &resetRequired):
		return xerrors.WrapKind(xerrors.KindNotAuthorized, "You must reset your password before signing in.", err)

	case errors.As(err, &tooMany), errors.As(err, &limitExceeded), errors.As(err, &tooManyFailed):
		return xerrors.WrapKind(xerrors.KindTooManyRequests, "Too many attempts. Please wait a moment and try again.", err)

	case errors.As(err, &internal):
		return xerrors.WrapKind(xerrors.KindProviderUnavailable, msgProviderUnavailable, err)

	case errors.As(err, &apiErr):
		return xerrors.WrapKind(xerrors.KindProviderError, msgProviderError, err)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return xerrors.WrapKind(xerrors.KindProviderUnavailable, msgProviderUnavailable, err)
	}

	// Transport failures never reach the provider and carry no API error code.
	return xerrors.WrapKind(xerrors.KindProviderUnavailable, msgProviderUnavailable, err)
}

func authFlowDisabled(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "user_password_auth") ||
		(strings.Contains(msg, "flow") && strings.Contains(msg, "not enabled"))
}

func providerMessage(msg, fallback string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return fallback
	}
	return msg
}
