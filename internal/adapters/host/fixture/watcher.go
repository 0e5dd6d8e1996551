package fixture

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changes to files in watched directories.
type Watcher struct {
	watcher   *fsnotify.Watcher
	callbacks []func(string)
	mu        sync.RWMutex
	done      chan struct{}
	stopOnce  sync.Once
	logger    *zap.Logger
}

func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		watcher: w,
		done:    make(chan struct{}),
		logger:  logger,
	}, nil
}

// Watch adds the directory holding path, so editor rename-on-save is seen.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error("failed to watch directory", zap.String("path", dir), zap.Error(err))
		return err
	}
	w.logger.Debug("watching directory for changes",
		zap.String("path", dir),
		zap.String("file", filepath.Base(path)),
	)
	return nil
}

func (w *Watcher) OnChange(callback func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start blocks until Stop is called.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("fixture file changed",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()),
				)
				w.notifyCallbacks(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fixture watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) StartAsync() {
	go w.Start()
}

func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) notifyCallbacks(path string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cb := range w.callbacks {
		cb(path)
	}
}
