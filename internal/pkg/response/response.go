package response

import (
	"net/http"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort before writing so later handlers in the chain never run
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// Result writes an auth gateway result as-is. Failed results are mapped to an
// HTTP status by their code; pending challenges are returned with 200.
func Result(c *gin.Context, successStatus int, result *auth.Result) {
	if result.Success || result.IsChallenge() {
		if successStatus == 0 {
			successStatus = http.StatusOK
		}
		c.JSON(successStatus, result)
		return
	}

	c.Abort()
	c.JSON(StatusForKind(xerrors.Kind(result.Code)), result)
}

// StatusForKind maps an auth failure kind to an HTTP status code.
func StatusForKind(kind xerrors.Kind) int {
	switch kind {
	case xerrors.KindInvalidParameter, xerrors.KindInvalidPassword,
		xerrors.KindInvalidCode, xerrors.KindExpiredCode, xerrors.KindTokenMalformed:
		return http.StatusBadRequest
	case xerrors.KindNotAuthorized, xerrors.KindUserNotFound,
		xerrors.KindExpiredSession, xerrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case xerrors.KindUserNotConfirmed:
		return http.StatusForbidden
	case xerrors.KindUsernameExists:
		return http.StatusConflict
	case xerrors.KindTooManyRequests:
		return http.StatusTooManyRequests
	case xerrors.KindConfigurationRequired, xerrors.KindConfigurationMissing:
		return http.StatusInternalServerError
	case xerrors.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}
