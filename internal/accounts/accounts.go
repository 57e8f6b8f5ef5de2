// Package accounts normalizes provider-specific account listings into one
// shape the rest of the application can use.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adsightlabs/adconnect/internal/backend"
	"github.com/adsightlabs/adconnect/internal/logger"
	"github.com/adsightlabs/adconnect/internal/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Status is the normalized account state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Account is the provider-neutral account shape.
type Account struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CustomerID string    `json:"customer_id,omitempty"`
	Status     Status    `json:"status"`
	Children   []Account `json:"children,omitempty"`
}

// Enumerator lists the accounts an access token can reach.
type Enumerator struct {
	backend *backend.Client
}

type EnumeratorParams struct {
	fx.In

	Backend *backend.Client
}

// NewEnumerator creates an Enumerator backed by the analytics backend.
func NewEnumerator(params EnumeratorParams) *Enumerator {
	return &Enumerator{backend: params.Backend}
}

// List fetches and normalizes the provider's account listing. An empty
// list is a valid outcome, not an error.
func (e *Enumerator) List(ctx context.Context, def *provider.Definition, token *oauth2.Token) ([]Account, error) {
	resp, err := e.backend.ListAccounts(ctx, def, token)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		// Some backend deployments expose only the campaigns endpoint for
		// providers that report accounts as resource names.
		if def.Endpoints.Campaigns != "" {
			return e.listFromCampaigns(ctx, def, token)
		}
		return nil, fmt.Errorf("account listing returned status %d", resp.StatusCode)
	}

	return decodeListing(resp.Body)
}

func (e *Enumerator) listFromCampaigns(ctx context.Context, def *provider.Definition, token *oauth2.Token) ([]Account, error) {
	resp, err := e.backend.ListCampaignResources(ctx, def, token)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("campaign listing returned status %d", resp.StatusCode)
	}

	var payload struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode campaign listing: %w", err)
	}

	var out []Account
	seen := make(map[string]bool)
	for _, rn := range payload.ResourceNames {
		acct, ok := ParseResourceName(rn)
		if !ok {
			logger.Debug("skipping unparseable resource name", zap.String("resource", rn))
			continue
		}
		if seen[acct.ID] {
			continue
		}
		seen[acct.ID] = true
		out = append(out, acct)
	}
	return out, nil
}

// decodeListing handles the two wire shapes the backend produces:
// structured objects under "accounts" (Google) or "ad_accounts" (Meta).
func decodeListing(body []byte) ([]Account, error) {
	var payload struct {
		Accounts   []googleAccount `json:"accounts"`
		AdAccounts []metaAccount   `json:"ad_accounts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode account listing: %w", err)
	}

	if payload.AdAccounts != nil {
		out := make([]Account, 0, len(payload.AdAccounts))
		for _, a := range payload.AdAccounts {
			out = append(out, a.normalize())
		}
		return out, nil
	}

	out := make([]Account, 0, len(payload.Accounts))
	for _, a := range payload.Accounts {
		out = append(out, a.normalize())
	}
	return out, nil
}

// metaAccount is the Meta ad account wire shape. Status is a numeric
// enum; 1 means active.
type metaAccount struct {
	ID            string        `json:"id"`
	AccountID     string        `json:"account_id"`
	Name          string        `json:"name"`
	AccountStatus int           `json:"account_status"`
	SubAccounts   []metaAccount `json:"sub_accounts,omitempty"`
}

func (a metaAccount) normalize() Account {
	out := Account{
		ID:         a.ID,
		Name:       a.Name,
		CustomerID: a.AccountID,
		Status:     StatusInactive,
	}
	if a.AccountStatus == 1 {
		out.Status = StatusActive
	}
	for _, sub := range a.SubAccounts {
		out.Children = append(out.Children, sub.normalize())
	}
	return out
}

// googleAccount is the structured Google Ads wire shape.
type googleAccount struct {
	ID              string `json:"id"`
	CustomerID      string `json:"customerId"`
	DescriptiveName string `json:"descriptiveName"`
	Name            string `json:"name"`
	Status          string `json:"status"`
}

func (a googleAccount) normalize() Account {
	out := Account{
		ID:         a.ID,
		CustomerID: a.CustomerID,
		Name:       a.DescriptiveName,
		Status:     StatusInactive,
	}
	if out.ID == "" {
		out.ID = a.CustomerID
	}
	if out.Name == "" {
		out.Name = a.Name
	}
	if strings.EqualFold(a.Status, "ENABLED") || strings.EqualFold(a.Status, "active") {
		out.Status = StatusActive
	}
	return out
}

// ParseResourceName extracts an account from a hierarchical resource name
// such as "customers/1234567890". The numeric suffix after the separator
// becomes the customer id.
func ParseResourceName(rn string) (Account, bool) {
	parts := strings.Split(rn, "/")
	if len(parts) < 2 || parts[0] != "customers" || parts[1] == "" {
		return Account{}, false
	}
	id := parts[1]
	return Account{
		ID:         id,
		CustomerID: id,
		Name:       "Customer " + id,
		Status:     StatusActive,
	}, true
}
