package csrf

import "net/http"

const (
	HeaderName        = "X-CSRF-TOKEN"
	AccessCookieName  = "csrf_access_token"
	RefreshCookieName = "csrf_refresh_token"
)

type CookieReader interface {
	Read(name string) string
}

type Provider struct {
	cookies CookieReader
}

func NewProvider(cookies CookieReader) *Provider {
	return &Provider{cookies: cookies}
}

func (p *Provider) AccessToken() string {
	return p.read(AccessCookieName)
}

func (p *Provider) RefreshToken() string {
	return p.read(RefreshCookieName)
}

func (p *Provider) read(name string) string {
	if p == nil || p.cookies == nil {
		return ""
	}
	return p.cookies.Read(name)
}

// SetHeader echoes token in the CSRF header. An empty token leaves the
// header unset.
func SetHeader(header http.Header, token string) {
	if token == "" {
		return
	}
	header.Set(HeaderName, token)
}
