package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDelay coalesces rapid Create+Write events from the credential
// capture tool rewriting the token file.
const debounceDelay = 200 * time.Millisecond

// tokenFile is the JSON shape written by the credential capture flow.
type tokenFile struct {
	Token      string    `json:"token"`
	CapturedAt time.Time `json:"captured_at"`
}

// TokenWatcher loads the renderer session token from a file and reloads it
// whenever the credential capture flow rewrites the file.
type TokenWatcher struct {
	store *Store
	path  string
	log   zerolog.Logger

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	debounce *time.Timer
}

// NewTokenWatcher creates a watcher for the given token file path.
func NewTokenWatcher(store *Store, path string, log zerolog.Logger) *TokenWatcher {
	return &TokenWatcher{
		store: store,
		path:  path,
		log:   log.With().Str("component", "token-watcher").Logger(),
	}
}

// Start loads the token file if present and begins watching its directory
// for rewrites. The directory, not the file, is watched: the capture tool
// replaces the file by rename.
func (w *TokenWatcher) Start() error {
	if err := w.load(); err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("no session token loaded at startup")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = fw

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.loop()
	w.log.Info().Str("path", w.path).Msg("watching session token file")
	return nil
}

// Stop closes the watcher.
func (w *TokenWatcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
}

func (w *TokenWatcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("token watcher error")
		}
	}
}

func (w *TokenWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, func() {
		if err := w.load(); err != nil {
			w.log.Warn().Err(err).Msg("token reload failed")
		} else {
			w.log.Info().Msg("session token reloaded")
		}
	})
}

func (w *TokenWatcher) load() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return fmt.Errorf("parse token file: %w", err)
	}
	if tf.Token == "" {
		return fmt.Errorf("token file has empty token")
	}
	w.store.SetRendererToken(tf.Token)
	return nil
}
