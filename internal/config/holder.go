package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/netixx/flexsentry/internal/xlog"
	"github.com/rs/zerolog"
)

// reloadDebounce coalesces the burst of fsnotify events a single atomic
// config-file replace (editor save, tmp+rename) tends to produce.
const reloadDebounce = 500 * time.Millisecond

// Holder holds the current configuration Snapshot with atomic, lock-free
// reads and supports hot reload from the backing file: a bad edit never
// displaces a good running configuration.
type Holder struct {
	reloadMu sync.Mutex
	epoch    atomic.Uint64
	snapshot atomic.Pointer[Snapshot]

	path    string
	dir     string
	base    string
	watcher *fsnotify.Watcher
	log     zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []chan<- *Snapshot
}

// NewHolder loads path once and returns a Holder seeded with the result.
func NewHolder(path string) (*Holder, error) {
	fileCfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	snap, err := BuildSnapshot(fileCfg)
	if err != nil {
		return nil, err
	}

	h := &Holder{path: path, log: xlog.Component("config")}
	h.swap(&snap)
	return h, nil
}

// Current returns the currently effective Snapshot.
func (h *Holder) Current() *Snapshot {
	return h.snapshot.Load()
}

func (h *Holder) swap(next *Snapshot) {
	next.Epoch = h.epoch.Add(1)
	h.snapshot.Store(next)
}

// Reload re-loads and re-validates the backing file, swapping it in only
// on success: a bad edit to the config file never displaces a good
// running configuration.
func (h *Holder) Reload(_ context.Context) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	fileCfg, err := Load(h.path)
	if err != nil {
		h.log.Error().Err(err).Msg("config reload failed, keeping current configuration")
		return err
	}
	snap, err := BuildSnapshot(fileCfg)
	if err != nil {
		h.log.Error().Err(err).Msg("config reload failed, keeping current configuration")
		return err
	}

	h.swap(&snap)
	h.log.Info().Uint64("epoch", snap.Epoch).Msg("configuration reloaded")
	h.notifyListeners(&snap)
	return nil
}

// StartWatcher watches the config file's directory for changes and calls
// Reload (debounced) whenever the file itself is written, created, or
// renamed into place. A no-op if the Holder was built without a path.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}

	h.dir = filepath.Dir(h.path)
	h.base = filepath.Base(h.path)
	if err := watcher.Add(h.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config: watch %s: %w", h.dir, err)
	}
	h.watcher = watcher

	h.log.Info().Str("path", h.path).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != h.base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.log.Warn().Err(err).Msg("automatic config reload failed")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Stop closes the file watcher, if one was started.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers ch to receive every subsequent successful
// reload's Snapshot. Sends are non-blocking: a full channel is skipped
// and logged rather than stalling the reload path.
func (h *Holder) RegisterListener(ch chan<- *Snapshot) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(snap *Snapshot) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- snap:
		default:
			h.log.Warn().Msg("skipped notifying config listener, channel full")
		}
	}
}
