package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Result is the payload handed from the callback context to the flow. At
// most one Result is ever produced per flow.
type Result struct {
	Type         string
	Code         string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	ErrorMessage string
}

// wireResult tolerates the two historical payload shapes: tokens nested
// under a data object, or flat fields in either camelCase or snake_case.
// Both are collapsed into one Result at the decode site so the variants
// never propagate further.
type wireResult struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`

	AccessTokenCamel  string `json:"accessToken"`
	AccessTokenSnake  string `json:"access_token"`
	RefreshTokenCamel string `json:"refreshToken"`
	RefreshTokenSnake string `json:"refresh_token"`
	ExpiresIn         int64  `json:"expires_in"`

	Data *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	} `json:"data"`
}

// DecodeResult parses a callback payload. An unparseable payload or a
// missing type discriminant yields ErrMalformedResult.
func DecodeResult(raw []byte) (*Result, error) {
	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if wire.Type == "" {
		return nil, fmt.Errorf("%w: missing type discriminant", ErrMalformedResult)
	}

	res := &Result{
		Type:      wire.Type,
		Code:      wire.Code,
		ExpiresIn: wire.ExpiresIn,
	}

	switch {
	case wire.Data != nil:
		res.AccessToken = wire.Data.AccessToken
		res.RefreshToken = wire.Data.RefreshToken
		if wire.Data.ExpiresIn > 0 {
			res.ExpiresIn = wire.Data.ExpiresIn
		}
	case wire.AccessTokenCamel != "":
		res.AccessToken = wire.AccessTokenCamel
		res.RefreshToken = wire.RefreshTokenCamel
	default:
		res.AccessToken = wire.AccessTokenSnake
		res.RefreshToken = wire.RefreshTokenSnake
	}
	if res.RefreshToken == "" {
		if wire.RefreshTokenCamel != "" {
			res.RefreshToken = wire.RefreshTokenCamel
		} else {
			res.RefreshToken = wire.RefreshTokenSnake
		}
	}

	if wire.Error != "" {
		res.ErrorMessage = wire.Error
	} else if wire.Message != "" {
		res.ErrorMessage = wire.Message
	}

	return res, nil
}

// Token converts a direct-delivery result into an oauth2 token, or nil if
// the result carries no access token.
func (r *Result) Token() *oauth2.Token {
	if r.AccessToken == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
	if r.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok
}

func (r *Result) marshal() ([]byte, error) {
	payload := map[string]any{"type": r.Type}
	if r.Code != "" {
		payload["code"] = r.Code
	}
	if r.AccessToken != "" {
		payload["access_token"] = r.AccessToken
	}
	if r.RefreshToken != "" {
		payload["refresh_token"] = r.RefreshToken
	}
	if r.ExpiresIn > 0 {
		payload["expires_in"] = r.ExpiresIn
	}
	if r.ErrorMessage != "" {
		payload["error"] = r.ErrorMessage
	}
	return json.Marshal(payload)
}
