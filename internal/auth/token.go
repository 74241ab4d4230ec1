package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload the tracker API signs into session tokens.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID returns the caller's user id, falling back to the registered subject.
func (c Claims) SubjectID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Subject
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// CookieName is the cookie the browser client keeps its session token in.
const CookieName = "token"

func IssueToken(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, raw string) (Claims, error) {
	if strings.TrimSpace(raw) == "" || len(secret) == 0 {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Role == "" || claims.SubjectID() == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ResolveSession verifies raw and reports whether it carries a usable session.
// Any failure, including a panic inside the parser, is treated as no session.
func ResolveSession(secret []byte, raw string) (claims Claims, ok bool) {
	defer func() {
		if recover() != nil {
			claims, ok = Claims{}, false
		}
	}()
	parsed, err := ParseToken(secret, raw)
	if err != nil {
		return Claims{}, false
	}
	return parsed, true
}

// Credential extracts the raw session token from a bearer header or the session cookie.
func Credential(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
