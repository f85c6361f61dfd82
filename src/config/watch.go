package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watcher follows a configuration file and reports every successful
// reload.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	serverID uuid.UUID
	cancel   context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Watch calls onChange with the reloaded configuration whenever the file
// at path is written or replaced. The directory is watched so editors that
// replace the file are followed too. serverID is the id in effect; it is
// kept, and written back, when an edit breaks the one in the file.
func Watch(ctx context.Context, path string, serverID uuid.UUID, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to watch metrics config")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, errors.Wrap(err, "failed to watch metrics config")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrap(err, "failed to watch metrics config")
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{fs: fw, path: abs, serverID: serverID, cancel: cancel, done: make(chan struct{})}
	go w.loop(ctx, onChange)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, onChange func(*Config)) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			c, err := Reload(w.path, w.serverID)
			if errors.Is(err, ErrEmpty) {
				continue
			}
			if err != nil {
				logger.Warn(ctx, "Failed to reload metrics config", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.serverID = c.ServerID
			onChange(c)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "Metrics config watcher error", zap.Error(err))
		}
	}
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.fs.Close()
		<-w.done
	})
	return err
}
