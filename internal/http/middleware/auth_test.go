package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", Auth(testSecret), RequireRoles("driver"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "role": UserRole(c)})
	})
	return r
}

func TestAuthAndRoles(t *testing.T) {
	r := newAuthRouter()
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"),
			Claims{UserID: "d1", Role: "driver", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret,
			Claims{UserID: "d1", Role: "driver", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}), http.StatusUnauthorized},
		{"no user", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret,
			Claims{Role: "driver", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}), http.StatusUnauthorized},
		{"wrong role", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret,
			Claims{UserID: "p1", Role: "passenger", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}), http.StatusForbidden},
		{"ok", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret,
			Claims{UserID: "d1", Role: "Driver", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestParseTokenRejectsEmptySecret(t *testing.T) {
	tok := signToken(t, jwt.SigningMethodHS256, testSecret,
		Claims{UserID: "a1", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	if _, err := ParseToken(tok, nil); err == nil {
		t.Fatalf("a token must never verify without a secret")
	}
	if _, err := ParseToken(tok, testSecret); err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newAuthRouter()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}
