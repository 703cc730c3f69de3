package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, enforceAdmin bool) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	tokens, err := auth.NewTokenManager(secret, time.Hour)
	require.NoError(t, err)
	m, err := NewMid(tokens, "/api/v1", zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	r.Use(RequestID(), Logger(zap.NewNop()), m.Authentication())
	ok := func(c *gin.Context) {
		userID := ""
		if claims, found := auth.ClaimsFrom(c.Request.Context()); found {
			userID = claims.UserID
		}
		c.JSON(http.StatusOK, gin.H{"user": userID})
	}
	r.GET("/health", ok)
	r.GET("/public/uploads/:file", ok)
	r.GET("/api/v1/products", ok)
	r.GET("/api/v1/products/:id", ok)
	r.POST("/api/v1/products", m.RequireAdmin(enforceAdmin), ok)
	r.GET("/api/v1/categories/:id", ok)
	r.POST("/api/v1/users/login", ok)
	r.POST("/api/v1/users/register", ok)
	r.GET("/api/v1/users", ok)
	r.GET("/api/v1/orders", ok)
	return r, tokens
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAllowList(t *testing.T) {
	r, _ := newRouter(t, false)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/public/uploads/a.png", http.StatusOK},
		{http.MethodGet, "/api/v1/products", http.StatusOK},
		{http.MethodGet, "/api/v1/products/abc", http.StatusOK},
		{http.MethodGet, "/api/v1/categories/abc", http.StatusOK},
		{http.MethodPost, "/api/v1/users/login", http.StatusOK},
		{http.MethodPost, "/api/v1/users/register", http.StatusOK},
		{http.MethodPost, "/api/v1/products", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/users", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/orders", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(r, tt.method, tt.path, "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthenticationRejects(t *testing.T) {
	r, tokens := newRouter(t, false)

	other, err := auth.NewTokenManager("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("u1", true)
	require.NoError(t, err)
	valid, err := tokens.Issue("u1", false)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": forged,
		"tampered":     valid[:len(valid)-2] + "xx",
	} {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/v1/orders", token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "unauthorized", body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticationAttachesClaims(t *testing.T) {
	r, tokens := newRouter(t, false)
	token, err := tokens.Issue("user-42", false)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/v1/orders", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-42"}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	t.Run("enforced", func(t *testing.T) {
		r, tokens := newRouter(t, true)
		user, _ := tokens.Issue("u1", false)
		admin, _ := tokens.Issue("u2", true)

		assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/v1/products", user).Code)
		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/products", admin).Code)
	})

	t.Run("not enforced", func(t *testing.T) {
		r, tokens := newRouter(t, false)
		user, _ := tokens.Issue("u1", false)

		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/products", user).Code)
	})
}

func TestRequestID(t *testing.T) {
	r, _ := newRouter(t, false)

	w := do(r, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Second))
	r.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	})

	w := do(r, http.MethodGet, "/", "")
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}
