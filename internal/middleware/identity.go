package middleware

// identity.go holds the accessors for what JWTAuth stored in the Echo
// context.  Handlers and the rate limiter read the caller through them.

import (
    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id, or "" when the request did not
// pass through JWTAuth.  A raw token stored under "user" is used as a
// fallback so routes guarded by other JWT middleware still resolve.
func UserID(c echo.Context) string {
    if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
        return s
    }
    if tok, ok := c.Get("user").(*jwt.Token); ok {
        if cl, ok := tok.Claims.(jwt.MapClaims); ok {
            if v, ok := cl["sub"].(string); ok && v != "" {
                return v
            }
        }
    }
    return ""
}

// DisplayName returns the "name" claim of the caller, possibly empty.
func DisplayName(c echo.Context) string {
    s, _ := c.Get(ctxDisplayName).(string)
    return s
}

// Role returns the "role" claim of the caller, possibly empty.
func Role(c echo.Context) string {
    s, _ := c.Get(ctxRole).(string)
    return s
}
