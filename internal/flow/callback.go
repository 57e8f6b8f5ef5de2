package flow

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"time"

	"github.com/adsightlabs/adconnect/internal/logger"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/adsightlabs/adconnect/internal/utils"
	"go.uber.org/zap"
)

// CallbackServer receives the provider redirect for one flow and turns it
// into a mailbox write. It binds to a loopback port from the configured
// range so every concurrent flow owns its own redirect target.
type CallbackServer struct {
	def     *provider.Definition
	flowID  string
	mailbox *Mailbox

	server   *http.Server
	listener net.Listener
	port     int
}

// NewCallbackServer creates the callback server for one flow invocation.
func NewCallbackServer(def *provider.Definition, flowID string, mailbox *Mailbox) *CallbackServer {
	return &CallbackServer{
		def:     def,
		flowID:  flowID,
		mailbox: mailbox,
	}
}

// Start binds a loopback listener on the first free port in the range and
// begins serving the callback route.
func (s *CallbackServer) Start(portFrom, portTo int) error {
	var listener net.Listener
	var err error
	for port := portFrom; port <= portTo; port++ {
		listener, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			s.port = port
			break
		}
	}
	if listener == nil {
		return fmt.Errorf("no available callback port in range %d-%d: %w", portFrom, portTo, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth-callback", s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("callback server stopped unexpectedly", zap.Error(err))
		}
	}()

	return nil
}

// RedirectURI returns the redirect target handed to the backend at
// initiate time.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/oauth-callback", s.port)
}

// Stop shuts the server down.
func (s *CallbackServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// handleCallback converts the redirect's query parameters into a Result.
// The state parameter must match this flow's id; a redirect from another
// flow is rejected instead of written into the wrong mailbox.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()

	if state := query.Get("state"); state != "" && state != s.flowID {
		logger.Warn("callback state does not match flow",
			zap.String("provider", string(s.def.Name)))
		utils.WriteError(w, "invalid_state", "State does not match this authorization flow", http.StatusBadRequest)
		return
	}

	res := s.resultFromQuery(query)
	if err := s.mailbox.Write(res); err != nil {
		logger.Error("failed to write flow result", zap.Error(err))
		utils.WriteError(w, "server_error", "Failed to record authorization result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.ErrorMessage != "" {
		fmt.Fprint(w, completionPage("Authorization failed", html.EscapeString(res.ErrorMessage)))
		return
	}
	fmt.Fprint(w, completionPage("Authorization successful", "You can close this window and return to the application."))
}

func (s *CallbackServer) resultFromQuery(query map[string][]string) *Result {
	get := func(key string) string {
		if vals, ok := query[key]; ok && len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	if errParam := get("error"); errParam != "" {
		msg := get("error_description")
		if msg == "" {
			msg = errParam
		}
		return &Result{Type: s.def.ErrorType, ErrorMessage: msg}
	}

	res := &Result{Type: s.def.SuccessType}
	switch s.def.Delivery {
	case provider.DeliveryDirect:
		res.AccessToken = get("access_token")
		res.RefreshToken = get("refresh_token")
	default:
		res.Code = get("code")
	}
	return res
}

func completionPage(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>adconnect</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #f7f7f9;
        }
        .card {
            text-align: center;
            background: white;
            padding: 40px 56px;
            border-radius: 12px;
            border: 1px solid #d8d9de;
        }
        h1 { color: #2b3445; margin: 0 0 8px 0; font-size: 22px; }
        p { color: #6d727c; margin: 0; font-size: 15px; }
    </style>
</head>
<body>
    <div class="card">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, title, message)
}
