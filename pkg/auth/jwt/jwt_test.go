package jwt

import (
	"context"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/sluice-dev/sluice/pkg/auth"
)

const testSecret = "test-hmac-secret"

func signToken(t *testing.T, secret string, method jwtlib.SigningMethod, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub":    "alice",
		"tenant": "org-1",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func newTestAuth(t *testing.T, cfg Config) *Authenticator {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func bearerRequest(token string) *http.Request {
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestValidToken(t *testing.T) {
	a := newTestAuth(t, Config{})
	token := signToken(t, testSecret, jwtlib.SigningMethodHS256, validClaims())

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "alice")
	}
	if result.Identity.Tenant != "org-1" {
		t.Errorf("Tenant = %q, want %q", result.Identity.Tenant, "org-1")
	}
}

func TestWrongSecret(t *testing.T) {
	a := newTestAuth(t, Config{})
	token := signToken(t, "other-secret", jwtlib.SigningMethodHS256, validClaims())

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No", result.Decision)
	}
}

func TestExpiredToken(t *testing.T) {
	a := newTestAuth(t, Config{})
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := signToken(t, testSecret, jwtlib.SigningMethodHS256, claims)

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (expired)", result.Decision)
	}
}

func TestIssuerValidation(t *testing.T) {
	a := newTestAuth(t, Config{Issuer: "sluice"})

	claims := validClaims()
	claims["iss"] = "sluice"
	good := signToken(t, testSecret, jwtlib.SigningMethodHS256, claims)
	if result := a.Authenticate(context.Background(), bearerRequest(good)); result.Decision != auth.Yes {
		t.Errorf("matching issuer: Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}

	claims["iss"] = "someone-else"
	bad := signToken(t, testSecret, jwtlib.SigningMethodHS256, claims)
	if result := a.Authenticate(context.Background(), bearerRequest(bad)); result.Decision != auth.No {
		t.Errorf("wrong issuer: Decision = %d, want No", result.Decision)
	}
}

func TestAudienceValidation(t *testing.T) {
	a := newTestAuth(t, Config{Audience: "gateway"})

	claims := validClaims()
	claims["aud"] = "gateway"
	good := signToken(t, testSecret, jwtlib.SigningMethodHS256, claims)
	if result := a.Authenticate(context.Background(), bearerRequest(good)); result.Decision != auth.Yes {
		t.Errorf("matching audience: Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}

	claims["aud"] = "other"
	bad := signToken(t, testSecret, jwtlib.SigningMethodHS256, claims)
	if result := a.Authenticate(context.Background(), bearerRequest(bad)); result.Decision != auth.No {
		t.Errorf("wrong audience: Decision = %d, want No", result.Decision)
	}
}

func TestMissingSubjectClaim(t *testing.T) {
	a := newTestAuth(t, Config{})
	token := signToken(t, testSecret, jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (missing sub)", result.Decision)
	}
}

func TestCustomClaimNames(t *testing.T) {
	a := newTestAuth(t, Config{SubjectClaim: "client_id", TenantClaim: "org"})
	token := signToken(t, testSecret, jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"client_id": "svc-7",
		"org":       "org-9",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), bearerRequest(token))

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}
	if result.Identity.Subject != "svc-7" || result.Identity.Tenant != "org-9" {
		t.Errorf("identity = %+v", result.Identity)
	}
}

func TestNonJWTBearerAbstains(t *testing.T) {
	a := newTestAuth(t, Config{})

	result := a.Authenticate(context.Background(), bearerRequest("sk-plain-api-key"))

	if result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain for non-JWT bearer", result.Decision)
	}
}

func TestNoHeaderAbstains(t *testing.T) {
	a := newTestAuth(t, Config{})
	r, _ := http.NewRequest("GET", "/", nil)

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain", result.Decision)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() accepted empty secret")
	}
}
