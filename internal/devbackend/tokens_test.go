package devbackend

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, issued, err := newToken("secret", now, time.Minute, "83000001", roleStudent, tokenTypeRefresh)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := parseToken("secret", func() time.Time { return now }, token, tokenTypeRefresh)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.LoginID != "83000001" || claims.Role != roleStudent || claims.ID != issued.ID || claims.CSRF != issued.CSRF {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" || claims.CSRF == "" {
		t.Fatalf("expected jti and csrf values")
	}
}

func TestTokenRejections(t *testing.T) {
	now := time.Now()
	token, _, err := newToken("secret", now, time.Minute, "70000001", roleTeacher, tokenTypeAccess)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	clock := func() time.Time { return now }

	if _, err := parseToken("other", clock, token, tokenTypeAccess); err == nil {
		t.Fatalf("expected signature mismatch")
	}
	if _, err := parseToken("secret", clock, token, tokenTypeRefresh); err == nil {
		t.Fatalf("expected access token refused where refresh is required")
	}
	later := func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := parseToken("secret", later, token, tokenTypeAccess); err == nil {
		t.Fatalf("expected expired token")
	}
}
