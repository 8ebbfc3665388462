package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiffinbox/checkout/internal/utils/requestctx"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func sessionClaims(subject, sessionID string, expiresIn time.Duration) SessionClaims {
	return SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Auth(testSecret), func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"user_id":     GetUserID(c),
			"session_id":  GetSessionID(c),
			"ctx_user":    requestctx.UserID(ctx),
			"ctx_session": requestctx.SessionID(ctx),
		})
	})
	return r
}

func doAuthRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set(AuthorizationHeader, authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidToken(t *testing.T) {
	token := signToken(t, testSecret, sessionClaims("user_1", "sess_1", time.Hour))

	w := doAuthRequest(newAuthRouter(), BearerPrefix+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"user_1"`)
	assert.Contains(t, w.Body.String(), `"session_id":"sess_1"`)
	assert.Contains(t, w.Body.String(), `"ctx_user":"user_1"`)
	assert.Contains(t, w.Body.String(), `"ctx_session":"sess_1"`)
}

func TestAuth_ExpiredTokenReportsSessionExpired(t *testing.T) {
	token := signToken(t, testSecret, sessionClaims("user_1", "sess_1", -time.Hour))

	w := doAuthRequest(newAuthRouter(), BearerPrefix+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_EXPIRED")
}

func TestAuth_MissingSessionClaimRejected(t *testing.T) {
	token := signToken(t, testSecret, sessionClaims("user_1", "", time.Hour))

	w := doAuthRequest(newAuthRouter(), BearerPrefix+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestAuth_WrongSignatureRejected(t *testing.T) {
	token := signToken(t, "other-secret", sessionClaims("user_1", "sess_1", time.Hour))

	w := doAuthRequest(newAuthRouter(), BearerPrefix+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestAuth_MissingHeaderRejected(t *testing.T) {
	w := doAuthRequest(newAuthRouter(), "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestAuth_NonBearerHeaderRejected(t *testing.T) {
	w := doAuthRequest(newAuthRouter(), "Basic dXNlcjpwYXNz")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}
