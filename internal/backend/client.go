// Package backend is the HTTP client for the analytics backend, which
// fronts the ad platform APIs and keeps the OAuth client secrets
// server-side.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adsightlabs/adconnect/internal/config"
	"github.com/adsightlabs/adconnect/internal/logger"
	"github.com/adsightlabs/adconnect/internal/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Client executes requests against the analytics backend
type Client struct {
	client *http.Client
	cfg    *config.BackendConfig
}

type ClientParams struct {
	fx.In

	Config *config.BackendConfig
}

// NewClient creates a new backend Client with the configured timeout
func NewClient(params ClientParams) *Client {
	return &Client{
		client: &http.Client{
			Timeout: params.Config.RequestTimeout(),
		},
		cfg: params.Config,
	}
}

// SetTimeout sets the timeout for the HTTP client
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Initiate asks the backend for the provider's consent URL. The flow id
// and the local redirect URI travel as query parameters so the backend can
// thread them through the consent URL's state. Consent URLs may embed
// single-use state, so a failed initiate is never retried.
func (c *Client) Initiate(ctx context.Context, def *provider.Definition, flowID, redirectURI string) (string, error) {
	query := url.Values{}
	query.Set("flow_id", flowID)
	if redirectURI != "" {
		query.Set("redirect_uri", redirectURI)
	}

	resp, err := c.Get(ctx, def.Endpoints.Initiate, query, NoAuth{})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("initiate returned status %d", resp.StatusCode)
	}

	var initiate InitiateResponse
	if err := json.Unmarshal(resp.Body, &initiate); err != nil {
		return "", fmt.Errorf("failed to decode initiate response: %w", err)
	}
	if initiate.AuthURL == "" {
		return "", fmt.Errorf("initiate response has no authUrl")
	}
	return initiate.AuthURL, nil
}

// ExchangeCode trades an authorization code for tokens via the backend,
// which holds the client secret.
func (c *Client) ExchangeCode(ctx context.Context, def *provider.Definition, code string) (*oauth2.Token, error) {
	query := url.Values{}
	query.Set("code", code)

	resp, err := c.Get(ctx, def.Endpoints.Exchange, query, NoAuth{})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("exchange returned status %d", resp.StatusCode)
	}

	var exchange ExchangeResponse
	if err := json.Unmarshal(resp.Body, &exchange); err != nil {
		return nil, fmt.Errorf("failed to decode exchange response: %w", err)
	}
	if exchange.AccessToken == "" {
		return nil, fmt.Errorf("exchange response has no access_token")
	}
	return exchange.Token(), nil
}

// TestToken asks the backend whether a token is still usable.
func (c *Client) TestToken(ctx context.Context, def *provider.Definition, token *oauth2.Token) (*TokenStatus, error) {
	resp, err := c.Get(ctx, def.Endpoints.TestToken, nil, NewBearerAuth(token))
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("test-token returned status %d", resp.StatusCode)
	}

	var status TokenStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode test-token response: %w", err)
	}
	return &status, nil
}

// ListAccounts fetches the raw account listing for a provider. Decoding is
// left to the caller because the payload shape differs per provider.
func (c *Client) ListAccounts(ctx context.Context, def *provider.Definition, token *oauth2.Token) (*Response, error) {
	return c.Get(ctx, def.Endpoints.Accounts, nil, NewBearerAuth(token))
}

// ListCampaignResources fetches the campaigns endpoint, used by providers
// whose account listing arrives as resource-name strings.
func (c *Client) ListCampaignResources(ctx context.Context, def *provider.Definition, token *oauth2.Token) (*Response, error) {
	if def.Endpoints.Campaigns == "" {
		return nil, fmt.Errorf("provider %s has no campaigns endpoint", def.Name)
	}
	return c.Get(ctx, def.Endpoints.Campaigns, nil, NewBearerAuth(token))
}

// Get performs a GET against the backend with the given auth applied.
func (c *Client) Get(ctx context.Context, path string, query url.Values, auth AuthManager) (*Response, error) {
	reqURL := c.cfg.URL() + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")

	if err := auth.ApplyAuth(req); err != nil {
		return nil, fmt.Errorf("failed to apply authentication: %w", err)
	}

	logger.Debug("backend request", zap.String("url", req.URL.String()))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}
