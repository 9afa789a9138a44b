package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	appcalendar "hostboard/internal/app/calendar"
)

const principalContextKey = "hostboard.principal"

// Headers set by the authenticating proxy in front of the service.
const (
	headerUserID        = "X-User-ID"
	headerUserRole      = "X-User-Role"
	headerPlatformToken = "X-Platform-Token"
)

type principal struct {
	ID    string
	Role  string
	Token string
}

func (p principal) viewer() appcalendar.Viewer {
	return appcalendar.Viewer{UserID: p.ID, Role: p.Role, Token: p.Token}
}

// PrincipalMiddleware trusts the identity headers of the upstream proxy. Requests without a
// user id continue anonymously.
func PrincipalMiddleware(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(headerUserID))
	if id == "" {
		c.Next()
		return
	}
	token := strings.TrimSpace(c.GetHeader(headerPlatformToken))
	if token == "" {
		token = extractBearerToken(c.GetHeader("Authorization"))
	}
	c.Set(principalContextKey, principal{
		ID:    id,
		Role:  strings.ToLower(strings.TrimSpace(c.GetHeader(headerUserRole))),
		Token: token,
	})
	c.Next()
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requirePrincipal(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required", "code": "unauthenticated"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
