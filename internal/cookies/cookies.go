package cookies

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// NewJar returns the cookie jar shared by the session HTTP client and the
// Reader. It plays the part of the browser's cookie store.
func NewJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Reader reads the cookies the jar would send to the backend base URL.
type Reader struct {
	jar  http.CookieJar
	base *url.URL
}

func NewReader(jar http.CookieJar, baseURL string) (*Reader, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Reader{jar: jar, base: base}, nil
}

// Read returns the value of the named cookie, or "" when it is absent.
func (r *Reader) Read(name string) string {
	if r == nil || r.jar == nil || r.base == nil {
		return ""
	}
	for _, cookie := range r.jar.Cookies(r.base) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}
