package settings

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 300 * time.Millisecond

// Watcher reports changes to one key made by another process
// (a second CLI invocation, the MCP server, a hand edit).
type Watcher struct {
	store    Store
	key      string
	onChange func(value string)
	log      zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    string
}

// NewWatcher creates a watcher for key in store. onChange runs on the
// watcher goroutine with the new value.
func NewWatcher(store Store, key string, onChange func(value string), log zerolog.Logger) *Watcher {
	return &Watcher{
		store:    store,
		key:      key,
		onChange: onChange,
		log:      log.With().Str("module", "settings_watcher").Logger(),
	}
}

// Start begins watching the directory holding the store file. Rename-based
// saves replace the file, so the directory is watched rather than the file.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.store.Path())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}

	w.last, _ = w.store.Get(w.key)
	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.log.Info().Str("path", w.store.Path()).Msg("Started watching settings")
	go w.watch(fw, w.stopCh, w.doneCh)
	return nil
}

// Stop ends the watch loop and waits for it to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.watcher = nil
	w.mu.Unlock()

	if fw == nil {
		return
	}
	close(stopCh)
	fw.Close()
	<-doneCh
	w.log.Info().Msg("Stopped watching settings")
}

func (w *Watcher) watch(fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	base := filepath.Base(w.store.Path())
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			// settings.db, settings.db-wal, settings.json
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.check()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) check() {
	value, err := w.store.Get(w.key)
	if err != nil {
		w.log.Warn().Err(err).Msg("Failed to re-read settings")
		return
	}

	w.mu.Lock()
	changed := value != w.last
	w.last = value
	w.mu.Unlock()

	if changed {
		w.log.Debug().Str("key", w.key).Str("value", value).Msg("Setting changed externally")
		w.onChange(value)
	}
}
