package remote

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reports the exp claim of the session token. The token is
// parsed without signature verification: verification is the server's job,
// the client only wants to know when a refresh is due.
func (c *Client) TokenExpiry() (time.Time, bool) {
	if c.token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// tokenExpired reports whether the session token carries an exp claim in the
// past. The second return is false when no expiry can be determined.
func (c *Client) tokenExpired() (expired, ok bool) {
	exp, ok := c.TokenExpiry()
	if !ok {
		return false, false
	}
	return time.Now().After(exp), true
}
