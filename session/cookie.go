package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrCookieInvalid is returned when an op-session cookie fails signature or claim validation.
var ErrCookieInvalid = errors.New("invalid op session cookie")

const minCookieSecretLen = 32

// CookieCodec signs and verifies the op-session cookie value. The cookie
// carries only the session ID and tenant ID; all session state lives in Redis.
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewCookieCodec creates a codec for op-session cookies. secret must be at
// least 32 bytes; ttl bounds the cookie's own exp claim independently of the
// Redis-side session TTL.
func NewCookieCodec(secret []byte, ttl time.Duration) (*CookieCodec, error) {
	if len(secret) < minCookieSecretLen {
		return nil, errors.New("cookie secret too short")
	}
	if ttl <= 0 {
		return nil, errors.New("cookie ttl must be positive")
	}
	return &CookieCodec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
	}, nil
}

// Encode produces a signed cookie value for the given session.
func (c *CookieCodec) Encode(sessionID, tenantID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sessionID,
		"tid": tenantID,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the session and tenant IDs it
// names. Any signature, algorithm, expiry, or claim-shape failure maps to
// [ErrCookieInvalid].
func (c *CookieCodec) Decode(value string) (sessionID, tenantID string, err error) {
	token, err := jwt.Parse(value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", "", ErrCookieInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrCookieInvalid
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return "", "", ErrCookieInvalid
	}
	tid, _ := claims["tid"].(string)

	return sid, tid, nil
}
