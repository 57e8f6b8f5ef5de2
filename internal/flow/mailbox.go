package flow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adsightlabs/adconnect/internal/provider"
)

// Mailbox is the single-writer/single-reader rendezvous between the
// callback context and the flow. Each flow owns its own mailbox file,
// keyed by provider and flow id, so concurrent flows can never consume
// each other's results.
type Mailbox struct {
	path string
}

// NewMailbox creates the mailbox for one flow invocation.
func NewMailbox(stateDir string, name provider.Name, flowID string) (*Mailbox, error) {
	dir := filepath.Join(stateDir, "flows")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create flow state directory: %w", err)
	}
	return &Mailbox{
		path: filepath.Join(dir, fmt.Sprintf("%s-%s.json", name, flowID)),
	}, nil
}

// Path returns the mailbox file path. The signal watcher matches
// notification events against it before trusting them.
func (m *Mailbox) Path() string {
	return m.path
}

// Write stores a result. The payload lands in a temp file first and is
// published with a link, so a reader can never observe a partially
// written mailbox. It is called at most once per flow; a second write
// fails rather than replacing an unconsumed result.
func (m *Mailbox) Write(res *Result) error {
	data, err := res.marshal()
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".pending-*")
	if err != nil {
		return fmt.Errorf("failed to create mailbox file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write mailbox file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write mailbox file: %w", err)
	}

	// Link publishes the complete payload atomically and, unlike rename,
	// fails if the mailbox already holds a result
	if err := os.Link(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		if os.IsExist(err) {
			return fmt.Errorf("mailbox already holds a result")
		}
		return fmt.Errorf("failed to publish mailbox file: %w", err)
	}
	return os.Remove(tmp.Name())
}

// Read consumes the result if one is present. Consumption is
// at-most-once: the file is renamed away before it is read, so a second
// Read returns no result even if the first one failed to decode. A
// payload that fails to decode surfaces ErrMalformedResult.
func (m *Mailbox) Read() (*Result, bool, error) {
	consumed := m.path + ".consumed"
	if err := os.Rename(m.path, consumed); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to claim mailbox file: %w", err)
	}
	defer os.Remove(consumed)

	raw, err := os.ReadFile(consumed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read mailbox file: %w", err)
	}

	res, err := DecodeResult(raw)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Discard removes any unconsumed result. Called on every terminal
// transition so a stale payload can never leak into a later flow.
func (m *Mailbox) Discard() {
	_ = os.Remove(m.path)
	_ = os.Remove(m.path + ".consumed")
}
