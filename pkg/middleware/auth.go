package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/auth"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/upload"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClaimsKey holds the verified *auth.Claims in the gin context.
const ClaimsKey = "claims"

type Mid struct {
	tokens *auth.TokenManager
	prefix string
	logger *zap.Logger
}

func NewMid(tokens *auth.TokenManager, prefix string, logger *zap.Logger) (*Mid, error) {
	if tokens == nil {
		return nil, errors.New("token manager cannot be nil")
	}
	return &Mid{tokens: tokens, prefix: strings.TrimRight(prefix, "/"), logger: logger}, nil
}

// Authentication requires a valid bearer token on every request that is not
// on the public allow-list.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.public(c.Request) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized.WithMessage("missing bearer token"))
			return
		}

		claims, err := m.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			m.logger.Debug("Token rejected",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.Error(err))
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized.WithMessage("invalid or expired token"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireAdmin rejects non-admin callers when enforce is set. With enforce
// off it lets every authenticated caller through.
func (m *Mid) RequireAdmin(enforce bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enforce {
			c.Next()
			return
		}
		claims, ok := auth.ClaimsFrom(c.Request.Context())
		if !ok {
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}
		if !claims.IsAdmin {
			abort(c, http.StatusForbidden, domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

func (m *Mid) public(r *http.Request) bool {
	path := r.URL.Path
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		if underPath(path, m.prefix+"/products") || underPath(path, m.prefix+"/categories") {
			return true
		}
		if r.Method != http.MethodOptions && (underPath(path, upload.PublicPath) || path == "/health") {
			return true
		}
	case http.MethodPost:
		return path == m.prefix+"/users/login" || path == m.prefix+"/users/register"
	}
	return false
}

func underPath(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

func abort(c *gin.Context, status int, err *domain.Error) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"error":      err.Code,
		"message":    err.Message,
		"request_id": c.GetString(RequestIDKey),
	})
}
