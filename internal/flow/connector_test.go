package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adsightlabs/adconnect/internal/accounts"
	"github.com/adsightlabs/adconnect/internal/backend"
	"github.com/adsightlabs/adconnect/internal/config"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	closed atomic.Bool
}

func (h *fakeHandle) Closed() bool { return h.closed.Load() }

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// fakeLauncher stands in for the browser: onOpen plays the user's part by
// following the consent URL.
type fakeLauncher struct {
	err    error
	handle *fakeHandle
	onOpen func(url string)
	opened atomic.Int32
}

func (l *fakeLauncher) Open(url string) (Handle, error) {
	l.opened.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	if l.onOpen != nil {
		go l.onOpen(url)
	}
	return l.handle, nil
}

// followConsentURL acts like a browser completing the consent step: the
// backend has already baked the redirect into the auth URL, so following
// it lands on the flow's callback server.
func followConsentURL(t *testing.T) func(url string) {
	return func(url string) {
		resp, err := http.Get(url)
		if err != nil {
			t.Errorf("Failed to follow consent URL: %v", err)
			return
		}
		_ = resp.Body.Close()
	}
}

func newTestConnector(t *testing.T, backendURL string, launcher Launcher) (*Connector, *config.FlowConfig) {
	t.Helper()
	registry, err := provider.NewRegistry()
	require.NoError(t, err)

	client := backend.NewClient(backend.ClientParams{
		Config: &config.BackendConfig{BaseURL: backendURL, Timeout: "5s"},
	})
	enumerator := accounts.NewEnumerator(accounts.EnumeratorParams{Backend: client})

	cfg := &config.FlowConfig{
		PollInterval:  20 * time.Millisecond,
		Timeout:       2 * time.Second,
		PortRangeFrom: 18800,
		PortRangeTo:   18845,
		StateDir:      t.TempDir(),
	}

	connector := NewConnector(ConnectorParams{
		Config:     cfg,
		Registry:   registry,
		Backend:    client,
		Enumerator: enumerator,
		Launcher:   launcher,
	})
	return connector, cfg
}

// initiateHandler answers the initiate endpoint the way the backend does:
// it threads the flow id and redirect into the consent URL. Here the
// consent URL is the redirect itself with the outcome pre-baked.
func initiateHandler(outcome string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirect := r.URL.Query().Get("redirect_uri")
		flowID := r.URL.Query().Get("flow_id")
		authURL := fmt.Sprintf("%s?state=%s&%s", redirect, flowID, outcome)
		if err := json.NewEncoder(w).Encode(map[string]string{"authUrl": authURL}); err != nil {
			panic(err)
		}
	}
}

func TestConnectCodeRelay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	mux.HandleFunc("/api/meta/callback", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "auth_1", r.URL.Query().Get("code"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok_1",
			"expires_in":   5183944,
		})
	})
	mux.HandleFunc("/api/meta/ad-accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok_1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ad_accounts": []map[string]any{
				{"id": "act_101", "account_id": "101", "name": "Acme Main", "account_status": 1},
				{"id": "act_102", "account_id": "102", "name": "Acme Archive", "account_status": 101},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: followConsentURL(t)}
	connector, _ := newTestConnector(t, server.URL, launcher)

	result, err := connector.Connect(context.Background(), provider.Meta)
	require.NoError(t, err)
	require.NotNil(t, result.Token)
	assert.Equal(t, "tok_1", result.Token.AccessToken)
	assert.NoError(t, result.AccountsErr)

	require.Len(t, result.Accounts, 2)
	assert.Equal(t, "Acme Main", result.Accounts[0].Name)
	assert.Equal(t, accounts.StatusActive, result.Accounts[0].Status)
	assert.Equal(t, accounts.StatusInactive, result.Accounts[1].Status)
}

func TestConnectDirectDelivery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/google/initiate", initiateHandler("access_token=tok_2&refresh_token=ref_2"))
	mux.HandleFunc("/api/google/accounts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accounts": []map[string]any{
				{"customerId": "1234567890", "descriptiveName": "Main Account", "status": "ENABLED"},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: followConsentURL(t)}
	connector, _ := newTestConnector(t, server.URL, launcher)

	result, err := connector.Connect(context.Background(), provider.Google)
	require.NoError(t, err)
	require.NotNil(t, result.Token)
	assert.Equal(t, "tok_2", result.Token.AccessToken)
	assert.Equal(t, "ref_2", result.Token.RefreshToken)

	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "1234567890", result.Accounts[0].CustomerID)
}

func TestConnectUnknownProvider(t *testing.T) {
	launcher := &fakeLauncher{handle: &fakeHandle{}}
	connector, _ := newTestConnector(t, "http://localhost:1", launcher)

	_, err := connector.Connect(context.Background(), provider.Name("tiktok"))
	require.ErrorIs(t, err, provider.ErrUnknownProvider)
	assert.Equal(t, int32(0), launcher.opened.Load())
}

func TestConnectInitiateFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}}
	connector, _ := newTestConnector(t, server.URL, launcher)

	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrInitiation)

	// The browser is never opened when initiation fails
	assert.Equal(t, int32(0), launcher.opened.Load())
}

func TestConnectPopupBlocked(t *testing.T) {
	var initiateCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", func(w http.ResponseWriter, r *http.Request) {
		initiateCalls.Add(1)
		initiateHandler("code=auth_1")(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("Unexpected backend call after blocked window: %s", r.URL.Path)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{err: errors.New("no display")}
	connector, _ := newTestConnector(t, server.URL, launcher)

	start := time.Now()
	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrPopupBlocked)

	// Rejection is immediate: no poll loop ever starts
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), initiateCalls.Load())
}

func TestConnectUserCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	server := httptest.NewServer(mux)
	defer server.Close()

	handle := &fakeHandle{}
	// The window closes a few ticks in, with no result ever arriving
	launcher := &fakeLauncher{handle: handle, onOpen: func(string) {
		time.Sleep(60 * time.Millisecond)
		handle.closed.Store(true)
	}}
	connector, _ := newTestConnector(t, server.URL, launcher)

	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrUserCancelled)
}

func TestConnectTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	server := httptest.NewServer(mux)
	defer server.Close()

	handle := &fakeHandle{}
	launcher := &fakeLauncher{handle: handle} // window stays open, result never arrives
	connector, cfg := newTestConnector(t, server.URL, launcher)
	cfg.Timeout = 150 * time.Millisecond

	start := time.Now()
	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrTimeout)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	// The deadline also shuts the window
	assert.True(t, handle.Closed())
}

func TestConnectResultBeatsClosure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	mux.HandleFunc("/api/meta/callback", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok_1"})
	})
	mux.HandleFunc("/api/meta/ad-accounts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ad_accounts": []any{}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	handle := &fakeHandle{}
	// The callback lands and the window closes back to back; the result
	// must win no matter which the poll loop notices first
	launcher := &fakeLauncher{handle: handle, onOpen: func(url string) {
		resp, err := http.Get(url)
		if err != nil {
			t.Errorf("Failed to follow consent URL: %v", err)
			return
		}
		_ = resp.Body.Close()
		handle.closed.Store(true)
	}}
	connector, _ := newTestConnector(t, server.URL, launcher)

	result, err := connector.Connect(context.Background(), provider.Meta)
	require.NoError(t, err)
	assert.Equal(t, "tok_1", result.Token.AccessToken)
}

func TestConnectProviderError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("error=access_denied&error_description=User+denied+the+request"))
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: followConsentURL(t)}
	connector, _ := newTestConnector(t, server.URL, launcher)

	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrAuthorizationFailed)
	assert.Contains(t, err.Error(), "User denied the request")
}

func TestConnectExchangeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	mux.HandleFunc("/api/meta/callback", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: followConsentURL(t)}
	connector, _ := newTestConnector(t, server.URL, launcher)

	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrExchange)
	assert.NotErrorIs(t, err, ErrTokenMissing)
}

func TestConnectDirectDeliveryWithoutToken(t *testing.T) {
	mux := http.NewServeMux()
	// Success redirect that carries no token fields at all
	mux.HandleFunc("/api/google/initiate", initiateHandler("noise=1"))
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: followConsentURL(t)}
	connector, _ := newTestConnector(t, server.URL, launcher)

	_, err := connector.Connect(context.Background(), provider.Google)
	require.ErrorIs(t, err, ErrTokenMissing)
}

func TestConnectAccountListingFailureKeepsToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	mux.HandleFunc("/api/meta/callback", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok_1"})
	})
	mux.HandleFunc("/api/meta/ad-accounts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: followConsentURL(t)}
	connector, _ := newTestConnector(t, server.URL, launcher)

	result, err := connector.Connect(context.Background(), provider.Meta)
	require.NoError(t, err)
	require.NotNil(t, result.Token)
	assert.Equal(t, "tok_1", result.Token.AccessToken)
	assert.ErrorIs(t, result.AccountsErr, ErrAccountFetch)
	assert.Empty(t, result.Accounts)
}

// selfClosingLauncher hands out a fresh handle per flow that reports
// closure after a delay, with no result ever arriving.
type selfClosingLauncher struct {
	delay time.Duration
}

func (l *selfClosingLauncher) Open(string) (Handle, error) {
	h := &fakeHandle{}
	go func() {
		time.Sleep(l.delay)
		h.closed.Store(true)
	}()
	return h, nil
}

func TestConnectReleasesResourcesOnSettle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	server := httptest.NewServer(mux)
	defer server.Close()

	connector, cfg := newTestConnector(t, server.URL, &selfClosingLauncher{delay: 40 * time.Millisecond})
	// A single-port range: a leaked callback listener would make every
	// following flow fail to bind
	cfg.PortRangeFrom = 18860
	cfg.PortRangeTo = 18860
	cfg.Timeout = 250 * time.Millisecond

	// Warm-up establishes the backend keep-alive connection so the
	// goroutine baseline is stable
	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrUserCancelled)

	baseline := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		_, err := connector.Connect(context.Background(), provider.Meta)
		require.ErrorIs(t, err, ErrUserCancelled)
	}

	// Timed-out flows release the port just the same; the deadline closes
	// each flow's handle, so every flow gets a fresh one
	for i := 0; i < 2; i++ {
		connector.launcher = &fakeLauncher{handle: &fakeHandle{}}
		_, err = connector.Connect(context.Background(), provider.Meta)
		require.ErrorIs(t, err, ErrTimeout)
	}

	// Every ticker, deadline timer, watcher goroutine and callback server
	// from the settled flows must be gone
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+2
	}, 2*time.Second, 25*time.Millisecond)
}

func TestConnectMalformedResult(t *testing.T) {
	var exchangeCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	mux.HandleFunc("/api/meta/callback", func(w http.ResponseWriter, r *http.Request) {
		exchangeCalls.Add(1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	// Write garbage straight into the mailbox instead of going through the
	// callback server; the flow id is recoverable from the consent URL's
	// state parameter
	var stateDir string
	launcher := &fakeLauncher{handle: &fakeHandle{}, onOpen: func(consentURL string) {
		u, err := neturl.Parse(consentURL)
		if err != nil {
			t.Errorf("Failed to parse consent URL: %v", err)
			return
		}
		flowID := u.Query().Get("state")
		path := filepath.Join(stateDir, "flows", fmt.Sprintf("meta-%s.json", flowID))
		if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
			t.Errorf("Failed to write mailbox payload: %v", err)
		}
	}}
	connector, cfg := newTestConnector(t, server.URL, launcher)
	stateDir = cfg.StateDir

	_, err := connector.Connect(context.Background(), provider.Meta)
	require.ErrorIs(t, err, ErrMalformedResult)

	// Token exchange is never attempted on a malformed result
	assert.Equal(t, int32(0), exchangeCalls.Load())
}

func TestConnectContextCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meta/initiate", initiateHandler("code=auth_1"))
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := &fakeLauncher{handle: &fakeHandle{}}
	connector, _ := newTestConnector(t, server.URL, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := connector.Connect(ctx, provider.Meta)
	require.ErrorIs(t, err, context.Canceled)
}
