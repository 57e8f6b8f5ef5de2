package flow

import (
	"path/filepath"

	"github.com/adsightlabs/adconnect/internal/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// signalWatcher is the low-latency companion to mailbox polling: it
// watches the flows directory and pings wake when this flow's file
// appears, so the poll loop does not have to wait out a full interval.
// Polling stays on regardless; the watcher only reduces latency.
type signalWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// watchMailbox starts a watcher for the given mailbox. A nil watcher with
// a nil error means the platform could not deliver events and the flow
// should rely on polling alone.
func watchMailbox(m *Mailbox, wake chan<- struct{}) *signalWatcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("mailbox watcher unavailable, polling only", zap.Error(err))
		return nil
	}
	if err := watcher.Add(filepath.Dir(m.Path())); err != nil {
		logger.Debug("mailbox watcher unavailable, polling only", zap.Error(err))
		watcher.Close()
		return nil
	}

	sw := &signalWatcher{
		watcher: watcher,
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Only this flow's own file is a trusted signal; events for
				// other flows' mailboxes are ignored.
				if event.Name != m.Path() {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("mailbox watcher error", zap.Error(err))
			case <-sw.done:
				return
			}
		}
	}()

	return sw
}

// Close releases the watcher. Safe on a nil receiver so every flow exit
// path can call it unconditionally.
func (sw *signalWatcher) Close() {
	if sw == nil {
		return
	}
	close(sw.done)
	sw.watcher.Close()
}
