package am

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
)

// ConfigWatcher watches a config file and calls reload callbacks after changes
type ConfigWatcher struct {
	configPath      string
	watcher         *fsnotify.Watcher
	callbacks       []ReloadCallback
	mu              sync.RWMutex
	debounceTimer   *time.Timer
	debouncePeriod  time.Duration
	isOwnWrite      bool // set by WriteConfig so our own saves do not trigger reloads
	isOwnWriteMutex sync.Mutex
	startOnce       sync.Once
	started         bool // guarded by mu
	done            chan struct{}
}

// ReloadCallback is called with the freshly loaded config
type ReloadCallback func(*Config) error

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher creates a watcher for configPath.
// The parent directory is watched so editors that replace the file on save are seen.
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config directory for %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     filepath.Clean(configPath),
		watcher:        watcher,
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite marks the next write as coming from us
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()
	cw.isOwnWrite = true
}

func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()

	if cw.isOwnWrite {
		cw.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching for config file changes. Calls after the first are no-ops.
func (cw *ConfigWatcher) Start() {
	cw.startOnce.Do(func() {
		cw.mu.Lock()
		cw.started = true
		cw.mu.Unlock()
		go cw.watchLoop()
	})
}

func (cw *ConfigWatcher) watchLoop() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath || isBackupFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if cw.checkOwnWrite() {
				logger.Debugw("Config watcher ignoring own write", "file", event.Name)
				continue
			}

			logger.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces bursts of writes into one reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}

	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			logger.Errorw("Config reload failed", "error", err)
		}
	})
}

func (cw *ConfigWatcher) reload() error {
	Reset()

	newConfig, err := Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := newConfig.Validate(); err != nil {
		return errors.Wrap(err, "reloaded config is invalid, keeping previous settings")
	}

	logger.Infow("Config reloaded successfully", "path", cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(newConfig); err != nil {
			// Continue calling other callbacks even if one fails
			logger.Warnw("Config reload callback error", "error", err)
		}
	}

	return nil
}

// Stop stops watching for config changes. It is safe on a watcher that was
// never started.
func (cw *ConfigWatcher) Stop() error {
	// Waits out a concurrent Start and keeps a later one from launching the loop
	cw.startOnce.Do(func() {})

	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	started := cw.started
	cw.mu.Unlock()

	err := cw.watcher.Close()
	if started {
		<-cw.done
	}
	return err
}

// isBackupFile checks if the file is a rotating backup (.back1, .back2, .back3)
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back")
}

// SetGlobalWatcher sets the global watcher instance consulted by WriteConfig
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}
