// Package apikey provides an API key authenticator that validates bearer
// tokens against argon2id hashes from configuration. Verified tokens are
// cached so the hash only has to be computed once per key per TTL window.
package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/sluice-dev/sluice/pkg/auth"
)

// cacheTTL bounds how long a verified key skips argon2 verification.
const cacheTTL = 5 * time.Minute

// KeyEntry maps an encoded argon2id hash to an identity.
type KeyEntry struct {
	Hash     string
	Identity auth.Identity
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys  []KeyEntry
	cache *ristretto.Cache[string, *auth.Identity]
}

// New creates an API key authenticator from configured hash entries.
func New(entries []KeyEntry) (*Authenticator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *auth.Identity]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Authenticator{keys: entries, cache: cache}, nil
}

// Name identifies the strategy in logs and metrics.
func (a *Authenticator) Name() string { return "apikey" }

// Authenticate extracts the bearer token and verifies it against the
// configured argon2id hashes.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but unknown
//   - Yes: token matches a configured hash
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Result{Decision: auth.Abstain}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Result{Decision: auth.Abstain}
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	// The cache key is a digest of the token, never the token itself.
	digest := sha256.Sum256([]byte(token))
	cacheKey := hex.EncodeToString(digest[:])

	if id, found := a.cache.Get(cacheKey); found {
		cp := *id
		return auth.Result{Decision: auth.Yes, Identity: &cp}
	}

	for _, entry := range a.keys {
		ok, err := Verify(token, entry.Hash)
		if err != nil || !ok {
			continue
		}
		id := entry.Identity
		a.cache.SetWithTTL(cacheKey, &id, 1, cacheTTL)
		cp := id
		return auth.Result{Decision: auth.Yes, Identity: &cp}
	}

	// Bearer token present but not found.
	return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

// Close releases the cache resources.
func (a *Authenticator) Close() {
	a.cache.Close()
}
