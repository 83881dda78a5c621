// internal/middleware/helpers.go
package middleware

import (
	"objettrouve-service/internal/domain/auth"

	"github.com/gin-gonic/gin"
)

// GetSubject gets the identity-provider subject from context
func GetSubject(c *gin.Context) (string, bool) {
	return c.GetString(ctxSubject), c.GetString(ctxSubject) != ""
}

// MustGetSubject gets the subject from context or panics
func MustGetSubject(c *gin.Context) string {
	subject, ok := GetSubject(c)
	if !ok {
		panic("subject not found in context")
	}
	return subject
}

// GetSessionID returns the server session id; empty for bearer-authenticated requests
func GetSessionID(c *gin.Context) string {
	return c.GetString(ctxSessionID)
}

func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(ctxIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ctxSubject)
	return exists
}

func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin")
}
