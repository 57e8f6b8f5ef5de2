package backend

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Response represents an HTTP response from the backend
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// InitiateResponse is the initiate endpoint payload: a ready-made consent
// URL built by the backend, which holds the client id and secret.
type InitiateResponse struct {
	AuthURL string `json:"authUrl"`
}

// ExchangeResponse is the code-to-token exchange payload.
type ExchangeResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Token converts the exchange payload into an oauth2 token.
func (e *ExchangeResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		TokenType:    e.TokenType,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if e.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(e.ExpiresIn) * time.Second)
	}
	return tok
}

// TokenStatus is the test-token endpoint payload.
type TokenStatus struct {
	Valid bool           `json:"valid"`
	User  map[string]any `json:"user,omitempty"`
	Error string         `json:"error,omitempty"`
}
