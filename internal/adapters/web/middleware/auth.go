package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the client key.
const APIKeyHeader = "X-API-Key"

// keyVerifier checks keys against one bcrypt hash and remembers the digest of
// the last accepted key so repeated requests skip the bcrypt cost.
type keyVerifier struct {
	hash []byte

	mu       sync.Mutex
	accepted [sha256.Size]byte
	ok       bool
}

func (v *keyVerifier) verify(key string) bool {
	digest := sha256.Sum256([]byte(key))

	v.mu.Lock()
	if v.ok && subtle.ConstantTimeCompare(digest[:], v.accepted[:]) == 1 {
		v.mu.Unlock()
		return true
	}
	v.mu.Unlock()

	if bcrypt.CompareHashAndPassword(v.hash, []byte(key)) != nil {
		return false
	}

	v.mu.Lock()
	v.accepted, v.ok = digest, true
	v.mu.Unlock()
	return true
}

// APIKeyMiddleware rejects requests whose X-API-Key does not match hash.
// An empty hash leaves the API open.
func APIKeyMiddleware(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(hash) == 0 {
			return next
		}
		v := &keyVerifier{hash: hash}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !v.verify(key) {
				http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashAPIKey returns the bcrypt hash stored in configuration for key.
func HashAPIKey(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
}
