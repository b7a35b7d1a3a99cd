package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(userID uuid.UUID, roles ...string) Claims {
	return Claims{
		UserID: userID.String(),
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("", zap.NewNop())
	assert.Error(t, err)
}

func TestVerifyToken(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)
	userID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		id, claims, err := verifier.VerifyToken(signToken(t, testSecret, validClaims(userID, "ROLE_USER")))
		require.NoError(t, err)
		assert.Equal(t, userID, id)
		assert.Equal(t, []string{"ROLE_USER"}, claims.Roles)
	})

	t.Run("expired", func(t *testing.T) {
		claims := validClaims(userID)
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, _, err := verifier.VerifyToken(signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, _, err := verifier.VerifyToken(signToken(t, "other", validClaims(userID)))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("malformed", func(t *testing.T) {
		_, _, err := verifier.VerifyToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenMalformed)
	})

	t.Run("user id is not a uuid", func(t *testing.T) {
		claims := validClaims(userID)
		claims.UserID = "42"
		_, _, err := verifier.VerifyToken(signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func newAuthRouter(t *testing.T) *gin.Engine {
	verifier, err := NewJWTVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)
	r := gin.New()
	r.GET("/me", Auth(verifier, zap.NewNop()), func(c *gin.Context) {
		id, err := GetUserID(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "roles": GetRoles(c)})
	})
	return r
}

func TestAuth(t *testing.T) {
	r := newAuthRouter(t)
	userID := uuid.New()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer garbage", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + signToken(t, testSecret, validClaims(userID, "ROLE_PREMIUM")), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
				assert.Contains(t, w.Body.String(), "ROLE_PREMIUM")
			}
		})
	}
}

func TestGetUserID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, err := GetUserID(c)
	assert.Error(t, err)
	assert.Empty(t, GetRoles(c))
}

func TestRequireStaticToken(t *testing.T) {
	r := gin.New()
	r.POST("/hook", RequireStaticToken("hook-token", zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := map[string]int{
		"":                  http.StatusUnauthorized,
		"Bearer wrong":      http.StatusUnauthorized,
		"Bearer hook-token": http.StatusNoContent,
		"hook-token":        http.StatusNoContent,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "header %q", header)
	}
}

func TestRequireStaticToken_EmptyExpectedRejectsAll(t *testing.T) {
	r := gin.New()
	r.POST("/hook", RequireStaticToken("", zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(ZapLogger(zap.New(core)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/health", "/ok?x=1", "/missing", "/boom"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if path != "/health" {
			assert.NotEmpty(t, w.Header().Get(requestIDHeader), path)
		}
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Request completed", entries[0].Message)
	assert.Equal(t, "/ok?x=1", entries[0].ContextMap()["path"])
	assert.Equal(t, "Client error", entries[1].Message)
	assert.Equal(t, "Server error", entries[2].Message)
}

func TestZapLogger_KeepsIncomingRequestID(t *testing.T) {
	r := gin.New()
	r.Use(ZapLogger(zap.NewNop()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}
