package csrf

import (
	"net/http"
	"testing"
)

type mapCookies map[string]string

func (m mapCookies) Read(name string) string { return m[name] }

func TestProviderTokens(t *testing.T) {
	provider := NewProvider(mapCookies{
		AccessCookieName:  "access-csrf",
		RefreshCookieName: "refresh-csrf",
	})
	if provider.AccessToken() != "access-csrf" {
		t.Fatalf("unexpected access token %q", provider.AccessToken())
	}
	if provider.RefreshToken() != "refresh-csrf" {
		t.Fatalf("unexpected refresh token %q", provider.RefreshToken())
	}

	empty := NewProvider(nil)
	if empty.AccessToken() != "" || empty.RefreshToken() != "" {
		t.Fatalf("expected empty tokens without cookies")
	}
}

func TestSetHeader(t *testing.T) {
	header := http.Header{}
	SetHeader(header, "")
	if _, ok := header[http.CanonicalHeaderKey(HeaderName)]; ok {
		t.Fatalf("expected header unset for empty token")
	}
	SetHeader(header, "tok")
	if header.Get(HeaderName) != "tok" {
		t.Fatalf("expected header echoed, got %q", header.Get(HeaderName))
	}
}
