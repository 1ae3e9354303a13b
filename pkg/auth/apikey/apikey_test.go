package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/sluice-dev/sluice/pkg/auth"
)

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()

	hash1, err := Hash("sk-test-key-1", nil)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	hash2, err := Hash("sk-test-key-2", nil)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	a, err := New([]KeyEntry{
		{Hash: hash1, Identity: auth.Identity{Subject: "alice", Tenant: "org-1"}},
		{Hash: hash2, Identity: auth.Identity{Subject: "bob"}},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestValidKey(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-test-key-1")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes", result.Decision)
	}
	if result.Identity.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "alice")
	}
	if result.Identity.Tenant != "org-1" {
		t.Errorf("Tenant = %q, want %q", result.Identity.Tenant, "org-1")
	}
}

func TestInvalidKey(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-wrong-key")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No", result.Decision)
	}
}

func TestNoHeader(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain", result.Decision)
	}
}

func TestNonBearerHeader(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain (non-Bearer)", result.Decision)
	}
}

func TestEmptyBearerToken(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer ")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (empty token)", result.Decision)
	}
}

func TestSecondKey(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-test-key-2")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes", result.Decision)
	}
	if result.Identity.Subject != "bob" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "bob")
	}
}

func TestVerifiedKeyIsCached(t *testing.T) {
	a := newTestAuth(t)
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-test-key-1")

	first := a.Authenticate(context.Background(), r)
	if first.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes", first.Decision)
	}

	// Ristretto applies buffered sets asynchronously.
	a.cache.Wait()

	second := a.Authenticate(context.Background(), r)
	if second.Decision != auth.Yes {
		t.Fatalf("cached Decision = %d, want Yes", second.Decision)
	}
	if second.Identity.Subject != "alice" {
		t.Errorf("cached Subject = %q, want %q", second.Identity.Subject, "alice")
	}
	// Identities from the cache must be copies, not shared pointers.
	if first.Identity == second.Identity {
		t.Error("cache returned a shared identity pointer")
	}
}

func TestHashRoundTrip(t *testing.T) {
	hash, err := Hash("sk-secret", nil)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	ok, err := Verify("sk-secret", hash)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !ok {
		t.Error("Verify() = false for matching key")
	}

	ok, err = Verify("sk-other", hash)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if ok {
		t.Error("Verify() = true for non-matching key")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"too few segments", "$argon2id$v=19$m=65536"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Verify("sk-key", tt.hash); err == nil {
				t.Error("Verify() accepted malformed hash")
			}
		})
	}
}
