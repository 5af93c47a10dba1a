package utils // package utils provides helpers for issuing bearer tokens

import (
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims describes the player a token is issued for.  Name becomes the
// display name at lobby join; Role is empty for ordinary players.
type Claims struct {
    UserID string
    Name   string
    Role   string
}

// NewAccessToken builds and signs an HS256 JWT carrying sub, name, role,
// exp and iat.  The coordinator does not issue tokens itself; this is used
// by the tokengen command and by tests.
func NewAccessToken(secret string, cl Claims, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub": cl.UserID,
        "exp": exp.Unix(),
        "iat": now.Unix(),
    }
    if cl.Name != "" {
        claims["name"] = cl.Name
    }
    if cl.Role != "" {
        claims["role"] = cl.Role
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
