package config

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Provider hands out the current configuration. Callers fetch it on every
// operation instead of keeping a copy, so a reload takes effect on the next call.
type Provider interface {
	Get() *Config
}

type staticProvider struct {
	cfg *Config
}

// Static returns a provider that always yields cfg
func Static(cfg *Config) Provider {
	if cfg == nil {
		cfg = Default()
	}
	return &staticProvider{cfg: cfg}
}

func (x *staticProvider) Get() *Config {
	return x.cfg
}

// Watcher reloads a config file when it changes. A file that fails to load or
// validate is logged and the previous configuration stays in effect.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch loads path and keeps reloading it until ctx is cancelled or Close is called
func Watch(ctx context.Context, path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve config path", goerr.V("path", path))
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create config watcher")
	}
	// the directory is watched so editors that replace the file by rename are seen
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		_ = fw.Close()
		return nil, goerr.Wrap(err, "failed to watch config directory", goerr.V("path", absPath))
	}

	w := &Watcher{
		path:    absPath,
		watcher: fw,
		done:    make(chan struct{}),
	}
	w.current.Store(cfg)

	go w.loop(ctx)
	return w, nil
}

// Get returns the latest valid configuration
func (x *Watcher) Get() *Config {
	return x.current.Load()
}

// Reload reads the file now. On failure the current configuration is kept.
func (x *Watcher) Reload(ctx context.Context) error {
	cfg, err := Load(x.path)
	if err != nil {
		logging.From(ctx).Warn("config reload failed, keeping previous", "path", x.path, "error", err)
		return err
	}
	x.current.Store(cfg)
	logging.From(ctx).Info("config reloaded", "path", x.path)
	return nil
}

// Close stops watching
func (x *Watcher) Close() error {
	err := x.watcher.Close()
	<-x.done
	return err
}

func (x *Watcher) loop(ctx context.Context) {
	defer close(x.done)
	logger := logging.From(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = x.watcher.Close()
			return

		case event, ok := <-x.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != x.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			_ = x.Reload(ctx)

		case err, ok := <-x.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "path", x.path, "error", err)
		}
	}
}
