package flow

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"
)

// Handle is a weak reference to the externally-opened browser window. The
// flow does not own the window's lifecycle; it only polls for closure and
// can request a close.
type Handle interface {
	// Closed reports whether the window is known to be gone. Openers that
	// hand the URL to an already-running browser never report closure, in
	// which case the flow relies on its deadline instead.
	Closed() bool
	// Close asks for the window to be shut. Safe to call more than once.
	Close() error
}

// Launcher opens a browser window at a URL.
type Launcher interface {
	Open(url string) (Handle, error)
}

// BrowserLauncher opens the system browser. If Command is set it is run
// with the URL appended; a dedicated window command (for example a
// chromium --app invocation) keeps the child process's lifetime tied to
// the window, which makes closure observable.
type BrowserLauncher struct {
	Command string
}

// NewBrowserLauncher creates a launcher for the platform default browser.
func NewBrowserLauncher() *BrowserLauncher {
	return &BrowserLauncher{}
}

// Open starts the browser. A failure to start the opener is the blocked
// case: the flow must fail before any polling begins.
func (l *BrowserLauncher) Open(url string) (Handle, error) {
	cmd, err := l.command(url)
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	h := &processHandle{cmd: cmd, tracked: l.Command != ""}
	go h.wait()
	return h, nil
}

func (l *BrowserLauncher) command(url string) (*exec.Cmd, error) {
	if l.Command != "" {
		parts := strings.Fields(l.Command)
		return exec.Command(parts[0], append(parts[1:], url)...), nil
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// processHandle tracks the opener process. Closure is only observable by
// polling, so the exit is latched into an atomic flag.
type processHandle struct {
	cmd     *exec.Cmd
	tracked bool
	exited  atomic.Bool
	failed  atomic.Bool
}

func (h *processHandle) wait() {
	err := h.cmd.Wait()
	if err != nil {
		h.failed.Store(true)
	}
	h.exited.Store(true)
}

// Closed reports window closure as well as it can be observed. For a
// tracked window command the process lifetime is the window lifetime, so
// any exit counts. For the platform opener a clean exit only means the
// URL was handed off to a running browser; only a failed exit counts.
func (h *processHandle) Closed() bool {
	if !h.exited.Load() {
		return false
	}
	if h.tracked {
		return true
	}
	return h.failed.Load()
}

func (h *processHandle) Close() error {
	if h.exited.Load() {
		return nil
	}
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
