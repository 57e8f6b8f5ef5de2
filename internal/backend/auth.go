package backend

import (
	"net/http"

	"golang.org/x/oauth2"
)

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// NoAuth applies no authentication. Used for the initiate and exchange
// endpoints, which run before any token exists.
type NoAuth struct{}

// ApplyAuth is a no-op.
func (NoAuth) ApplyAuth(*http.Request) error { return nil }

// BearerAuth authenticates requests with an OAuth access token.
type BearerAuth struct {
	token *oauth2.Token
}

// NewBearerAuth creates a BearerAuth for the given token.
func NewBearerAuth(token *oauth2.Token) *BearerAuth {
	return &BearerAuth{token: token}
}

// ApplyAuth sets the Authorization header from the token.
func (a *BearerAuth) ApplyAuth(req *http.Request) error {
	a.token.SetAuthHeader(req)
	return nil
}
