package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/poker-table-coordinator/internal/config"
    "github.com/iliyamo/poker-table-coordinator/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, cl utils.Claims) string {
    t.Helper()
    tok, err := utils.NewAccessToken(secret, cl, time.Minute)
    require.NoError(t, err)
    return "Bearer " + tok.Token
}

// whoami echoes what the middleware chain stored for the caller.
func whoami(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"user": UserID(c), "name": DisplayName(c), "role": Role(c)})
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if auth != "" {
        req.Header.Set("Authorization", auth)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuth(t *testing.T) {
    e := echo.New()
    e.GET("/me", whoami, JWTAuth(secret))

    rec := serve(e, http.MethodGet, "/me", bearer(t, utils.Claims{UserID: "alice", Name: "Alice"}))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"user":"alice","name":"Alice","role":""}`, rec.Body.String())

    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer junk").Code)

    other, err := utils.NewAccessToken("other-secret", utils.Claims{UserID: "alice"}, time.Minute)
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer "+other.Token).Code)

    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", bearer(t, utils.Claims{Name: "nobody"})).Code)
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    e.POST("/admin", whoami, JWTAuth(secret), RequireRole(RoleAdmin))

    assert.Equal(t, http.StatusForbidden, serve(e, http.MethodPost, "/admin", bearer(t, utils.Claims{UserID: "bob"})).Code)
    assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/admin", bearer(t, utils.Claims{UserID: "ops", Role: RoleAdmin})).Code)
}

func TestTokenBucket(t *testing.T) {
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    cfg := config.RateLimitConfig{
        Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
        TTL: 2 * time.Hour, KeyStrategy: "user_route", Prefix: "rl",
    }
    e := echo.New()
    e.POST("/act", whoami, JWTAuth(secret), NewTokenBucket(cfg, rdb, nil))

    alice := bearer(t, utils.Claims{UserID: "alice"})
    assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/act", alice).Code)
    rec := serve(e, http.MethodPost, "/act", alice)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

    rec = serve(e, http.MethodPost, "/act", alice)
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))

    // Buckets are per user.
    assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/act", bearer(t, utils.Claims{UserID: "bob"})).Code)
    assert.True(t, mr.Exists("rl:user:alice:route:POST /act"))
}

func TestTokenBucketFailsOpen(t *testing.T) {
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
    t.Cleanup(func() { _ = rdb.Close() })
    mr.Close()

    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl"}
    e := echo.New()
    e.POST("/act", whoami, NewTokenBucket(cfg, rdb, nil))
    assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/act", "").Code)
}
