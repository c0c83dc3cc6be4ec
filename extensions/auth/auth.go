// Package auth provides an http.RoundTripper that adds a bearer token to
// the long-polling requests a session sends.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoToken is returned when a request needs a token and none is set
var ErrNoToken = errors.New("no token provided to authenticator transport")

// TokenAuthenticator adds "Authorization: Bearer <Token>" to requests sent
// to hosts ending in HostSuffix. An empty HostSuffix matches every host.
type TokenAuthenticator struct {
	Token      string
	HostSuffix string
	// Transport sends the requests. When nil http.DefaultTransport is used.
	Transport http.RoundTripper
}

// RoundTrip implements the RoundTripper interface
func (t *TokenAuthenticator) RoundTrip(request *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if !strings.HasSuffix(request.URL.Hostname(), t.HostSuffix) {
		return transport.RoundTrip(request)
	}
	if t.Token == "" {
		if request.Body != nil {
			_ = request.Body.Close()
		}
		return nil, ErrNoToken
	}

	authenticated := request.Clone(request.Context())
	authenticated.Header.Set("Authorization", "Bearer "+t.Token)
	return transport.RoundTrip(authenticated)
}
