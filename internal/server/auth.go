// Package server implements the serv00-ghost coordinator: node registry,
// command mailbox, relayed log/inventory caches, authentication, login
// throttling and the request proxy to node management APIs.
package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Dashboard session cookie.
const (
	SessionCookie = "auth_token"
	SessionTTL    = 7 * 24 * time.Hour
)

// ─── Credential verification ──────────────────────────────────────────────────

// CredentialVerifier decides whether a presented password is the dashboard
// password. Callers never see how the stored value is kept.
type CredentialVerifier interface {
	Verify(password string) bool
}

// PlainVerifier compares against the configured plaintext password.
type PlainVerifier struct {
	Password string
}

func (v PlainVerifier) Verify(password string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(v.Password)) == 1
}

// BcryptVerifier compares against a bcrypt hash of the password.
type BcryptVerifier struct {
	Hash []byte
}

func (v BcryptVerifier) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword(v.Hash, []byte(password)) == nil
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

// Sessions issues and validates the dashboard session cookie value.
type Sessions interface {
	Issue() (string, error)
	Valid(token string) bool
}

// PasswordSessions uses the password itself as the cookie value. This is
// the legacy cookie format; it only works with PlainVerifier.
type PasswordSessions struct {
	Password string
	Verifier CredentialVerifier
}

func (s PasswordSessions) Issue() (string, error) { return s.Password, nil }

func (s PasswordSessions) Valid(token string) bool {
	return token != "" && s.Verifier.Verify(token)
}

// sessionClaims is the payload of a jwt-mode session cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// JWTSessions issues HS256-signed session tokens valid for SessionTTL.
type JWTSessions struct {
	key []byte
	now func() time.Time
}

// NewJWTSessions creates a token issuer. now may be nil.
func NewJWTSessions(key string, now func() time.Time) *JWTSessions {
	if now == nil {
		now = time.Now
	}
	return &JWTSessions{key: []byte(key), now: now}
}

// Issue creates a signed session token.
func (s *JWTSessions) Issue() (string, error) {
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "serv00-ghost",
			Subject:   "dashboard",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Valid parses and verifies a session token.
func (s *JWTSessions) Valid(token string) bool {
	if token == "" {
		return false
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer("serv00-ghost"))
	return err == nil && parsed.Valid
}

// ─── Human channel ────────────────────────────────────────────────────────────

// HumanAuth guards dashboard traffic. A request is authenticated by a valid
// session cookie or by an HTTP Basic credential whose password verifies.
type HumanAuth struct {
	verifier CredentialVerifier
	sessions Sessions
	open     bool
}

// NewHumanAuth creates the dashboard guard. open disables every check; it
// is used when no dashboard password is configured.
func NewHumanAuth(verifier CredentialVerifier, sessions Sessions, open bool) *HumanAuth {
	return &HumanAuth{verifier: verifier, sessions: sessions, open: open}
}

// Authenticated reports whether r carries a valid human credential.
func (h *HumanAuth) Authenticated(r *http.Request) bool {
	if h.open {
		return true
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && h.sessions.Valid(cookie.Value) {
		return true
	}
	if _, password, ok := r.BasicAuth(); ok {
		return h.verifier.Verify(password)
	}
	return false
}

// errBadPassword is returned by Login on a wrong password.
var errBadPassword = errors.New("invalid password")

// Login verifies password and returns the session cookie value to set.
func (h *HumanAuth) Login(password string) (string, error) {
	if !h.open && !h.verifier.Verify(password) {
		return "", errBadPassword
	}
	return h.sessions.Issue()
}

// Middleware rejects unauthenticated dashboard requests with 403.
func (h *HumanAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.Authenticated(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// setSessionCookie writes the dashboard cookie with the 7-day lifetime.
func setSessionCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, value, int(SessionTTL.Seconds()), "/", "", false, true)
}
