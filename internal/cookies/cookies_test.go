package cookies

import (
	"net/http"
	"net/url"
	"testing"
)

func TestReaderReadsJarCookies(t *testing.T) {
	jar, err := NewJar()
	if err != nil {
		t.Fatalf("jar error: %v", err)
	}
	base, _ := url.Parse("http://portal.local/api")
	jar.SetCookies(base, []*http.Cookie{
		{Name: "csrf_refresh_token", Value: "r-123", Path: "/"},
		{Name: "csrf_access_token", Value: "a-456", Path: "/"},
	})

	reader, err := NewReader(jar, "http://portal.local/api")
	if err != nil {
		t.Fatalf("reader error: %v", err)
	}
	if got := reader.Read("csrf_refresh_token"); got != "r-123" {
		t.Fatalf("expected r-123, got %q", got)
	}
	if got := reader.Read("csrf_access_token"); got != "a-456" {
		t.Fatalf("expected a-456, got %q", got)
	}
	if got := reader.Read("missing"); got != "" {
		t.Fatalf("expected empty value for missing cookie, got %q", got)
	}
}

func TestNilReaderIsEmpty(t *testing.T) {
	var reader *Reader
	if got := reader.Read("anything"); got != "" {
		t.Fatalf("expected empty value, got %q", got)
	}
	reader, err := NewReader(nil, "http://portal.local")
	if err != nil {
		t.Fatalf("reader error: %v", err)
	}
	if got := reader.Read("anything"); got != "" {
		t.Fatalf("expected empty value without jar, got %q", got)
	}
}
