// Package auth holds the shared-secret check used on every machine-to-machine
// channel: agent heartbeats and callbacks into the master, and the master's
// proxied calls into a node's management API.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SecretHeader carries the cluster secret on machine traffic.
const SecretHeader = "X-Cluster-Secret"

// MachineAuth checks the shared secret on machine traffic.
type MachineAuth struct {
	secret string
}

// NewMachineAuth creates a checker. An empty secret accepts every request.
func NewMachineAuth(secret string) *MachineAuth {
	return &MachineAuth{secret: secret}
}

// Allowed reports whether presented matches the configured secret.
func (m *MachineAuth) Allowed(presented string) bool {
	if m.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(m.secret)) == 1
}

// Request reports whether r carries the configured secret.
func (m *MachineAuth) Request(r *http.Request) bool {
	return m.Allowed(r.Header.Get(SecretHeader))
}

// Middleware aborts requests without a valid secret using reject, or with a
// bare 403 {"error":"Forbidden"} when reject is nil.
func (m *MachineAuth) Middleware(reject gin.HandlerFunc) gin.HandlerFunc {
	if reject == nil {
		reject = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		}
	}
	return func(c *gin.Context) {
		if !m.Request(c.Request) {
			reject(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SetSecret sets the secret header on an outgoing request. It is a no-op for
// an empty secret.
func SetSecret(r *http.Request, secret string) {
	if secret != "" {
		r.Header.Set(SecretHeader, secret)
	}
}
