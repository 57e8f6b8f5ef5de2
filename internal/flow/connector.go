// Package flow runs the browser-based OAuth authorization flow: it asks
// the backend for a consent URL, opens a browser window, waits for the
// callback to land in the flow's mailbox, finalizes the token, and
// enumerates the accounts it can reach.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/adsightlabs/adconnect/internal/accounts"
	"github.com/adsightlabs/adconnect/internal/backend"
	"github.com/adsightlabs/adconnect/internal/config"
	"github.com/adsightlabs/adconnect/internal/logger"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ConnectResult is the outcome of a successful flow. AccountsErr is the
// partial-success case: the token was obtained but the account listing
// failed; the token is still usable.
type ConnectResult struct {
	Provider    provider.Name
	Token       *oauth2.Token
	Accounts    []accounts.Account
	AccountsErr error
}

// Connector orchestrates one flow invocation per Connect call. Concurrent
// calls are independent: each owns its own flow id, mailbox file,
// callback port, browser handle, and timers.
type Connector struct {
	cfg        *config.FlowConfig
	registry   *provider.Registry
	backend    *backend.Client
	enumerator *accounts.Enumerator
	launcher   Launcher
}

type ConnectorParams struct {
	fx.In

	Config     *config.FlowConfig
	Registry   *provider.Registry
	Backend    *backend.Client
	Enumerator *accounts.Enumerator
	Launcher   Launcher
}

// NewConnector creates a Connector.
func NewConnector(params ConnectorParams) *Connector {
	return &Connector{
		cfg:        params.Config,
		registry:   params.Registry,
		backend:    params.Backend,
		enumerator: params.Enumerator,
		launcher:   params.Launcher,
	}
}

// Connect runs the full authorization flow for a provider. Every failure
// is one of the flow's typed errors; callers decide how to present them.
func (c *Connector) Connect(ctx context.Context, name provider.Name) (*ConnectResult, error) {
	def, err := c.registry.Get(name)
	if err != nil {
		return nil, err
	}

	flowID := uuid.NewString()
	log := logger.With(
		zap.String("provider", string(name)),
		zap.String("flow_id", flowID),
	)

	mailbox, err := NewMailbox(c.cfg.StateDir, name, flowID)
	if err != nil {
		return nil, err
	}
	defer mailbox.Discard()

	callback := NewCallbackServer(def, flowID, mailbox)
	if err := callback.Start(c.cfg.PortRangeFrom, c.cfg.PortRangeTo); err != nil {
		return nil, err
	}
	defer func() {
		if err := callback.Stop(context.Background()); err != nil {
			log.Warn("failed to stop callback server", zap.Error(err))
		}
	}()

	authURL, err := c.backend.Initiate(ctx, def, flowID, callback.RedirectURI())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitiation, err)
	}

	wake := make(chan struct{}, 1)
	watcher := watchMailbox(mailbox, wake)
	defer watcher.Close()

	handle, err := c.launcher.Open(authURL)
	if err != nil || handle == nil {
		// Fail before any poll timer starts; opening again needs a user
		// gesture or a permission change, not a retry.
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPopupBlocked, err)
		}
		return nil, ErrPopupBlocked
	}
	log.Debug("authorization window opened")

	res, err := c.await(ctx, handle, mailbox, wake)
	if closeErr := handle.Close(); closeErr != nil {
		log.Debug("failed to close authorization window", zap.Error(closeErr))
	}
	if err != nil {
		return nil, err
	}

	token, err := c.finalize(ctx, def, res)
	if err != nil {
		return nil, err
	}
	log.Info("authorization complete")

	result := &ConnectResult{
		Provider: name,
		Token:    token,
	}

	accts, err := c.enumerator.List(ctx, def, token)
	if err != nil {
		// Partial success: the token stands on its own.
		result.AccountsErr = fmt.Errorf("%w: %v", ErrAccountFetch, err)
		log.Warn("account listing failed after authorization", zap.Error(err))
		return result, nil
	}
	result.Accounts = accts

	return result, nil
}

// await polls for the two racing exit conditions. The mailbox is checked
// before window closure on every pass, so a result that arrives in the
// same tick the window closes still wins.
func (c *Connector) await(ctx context.Context, handle Handle, mailbox *Mailbox, wake <-chan struct{}) (*Result, error) {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		res, ok, err := mailbox.Read()
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
		if handle.Closed() {
			return nil, ErrUserCancelled
		}

		select {
		case <-ticker.C:
		case <-wake:
		case <-deadline.C:
			_ = handle.Close()
			return nil, ErrTimeout
		case <-ctx.Done():
			_ = handle.Close()
			return nil, ctx.Err()
		}
	}
}

// finalize turns a consumed result into a token, per the provider's
// delivery mode.
func (c *Connector) finalize(ctx context.Context, def *provider.Definition, res *Result) (*oauth2.Token, error) {
	switch res.Type {
	case def.SuccessType:
	case def.ErrorType:
		msg := res.ErrorMessage
		if msg == "" {
			msg = "provider reported an error"
		}
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationFailed, msg)
	default:
		return nil, fmt.Errorf("%w: unexpected discriminant %q", ErrMalformedResult, res.Type)
	}

	switch def.Delivery {
	case provider.DeliveryCode:
		if res.Code == "" {
			return nil, fmt.Errorf("%w: no authorization code in result", ErrTokenMissing)
		}
		token, err := c.backend.ExchangeCode(ctx, def, res.Code)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExchange, err)
		}
		return token, nil
	default:
		token := res.Token()
		if token == nil {
			return nil, fmt.Errorf("%w: no access token in result", ErrTokenMissing)
		}
		return token, nil
	}
}
