package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	return NewService(Config{
		SigningKey: "test-key",
		TokenTTL:   time.Hour,
		Users:      map[string]string{"Ana@Example.com": hash},
		BcryptCost: bcrypt.MinCost,
	})
}

func TestLoginAndVerify(t *testing.T) {
	s := newTestService(t)

	token, user, err := s.Login("ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.True(t, s.IsAuthenticated("Bearer "+token))
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestService(t)

	_, _, err := s.Login("ana@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	_, _, err = s.Login("nobody@example.com", "secret")
	assert.True(t, IsAuthError(err))
}

func TestRegisterThenLogin(t *testing.T) {
	s := newTestService(t)

	u, err := s.Register(" Luis@Example.com ", "pw", "Luis", "Pérez")
	require.NoError(t, err)
	assert.Equal(t, "luis@example.com", u.Email)
	assert.Equal(t, "Pérez", u.LastName)

	_, err = s.Register("luis@example.com", "other", "", "")
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = s.Register("", "pw", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	token, _, err := s.Login("luis@example.com", "pw")
	require.NoError(t, err)
	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "Luis", got.Name)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	s := newTestService(t)
	token, _, err := s.Login("ana@example.com", "secret")
	require.NoError(t, err)

	other := NewService(Config{SigningKey: "other-key", Users: map[string]string{}})
	_, err = other.Verify(token)
	assert.True(t, IsAuthError(err), "wrong key")

	_, err = s.Verify("not-a-jwt")
	assert.True(t, IsAuthError(err))

	_, err = s.Verify("")
	assert.True(t, IsAuthError(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := newTestService(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := s.Login("ana@example.com", "secret")
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.True(t, IsAuthError(err))
	assert.False(t, s.IsAuthenticated(token))
}

func newRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", Middleware(s), func(c *gin.Context) {
		u, _ := UserFrom(c)
		c.String(http.StatusOK, u.Email)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	s := newTestService(t)
	token, _, err := s.Login("ana@example.com", "secret")
	require.NoError(t, err)
	r := newRouter(s)

	cases := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{name: "header", target: "/private", header: "Bearer " + token, code: http.StatusOK},
		{name: "query", target: "/private?token=" + token, code: http.StatusOK},
		{name: "missing", target: "/private", code: http.StatusUnauthorized},
		{name: "garbage", target: "/private", header: "Bearer nope", code: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "ana@example.com", w.Body.String())
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	r := newRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
