package repository

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// File stores facts in a local JSONL file. Saves write a sibling temp file and
// rename it over the live path, so readers see either the old or the new
// store and never a partial one.
type File struct {
	path string
	mu   sync.RWMutex

	rename func(oldpath, newpath string) error
}

// NewFile creates a store backed by path. The file is created on first save.
func NewFile(path string) *File {
	return &File{
		path:   path,
		rename: os.Rename,
	}
}

// Path returns the live store path
func (x *File) Path() string {
	return x.path
}

// LoadFacts reads all facts in insertion order. A missing file is an empty store.
func (x *File) LoadFacts(ctx context.Context) ([]*model.Fact, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	fd, err := os.Open(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*model.Fact{}, nil
		}
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to open fact store",
			goerr.V("path", x.path), goerr.V("error", err.Error()))
	}
	defer fd.Close()

	facts, err := DecodeFacts(ctx, fd)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to read fact store",
			goerr.V("path", x.path), goerr.V("error", err.Error()))
	}
	if facts == nil {
		facts = []*model.Fact{}
	}

	logging.From(ctx).Debug("fact store loaded", "path", x.path, "count", len(facts))
	return facts, nil
}

// SaveFacts replaces the store with facts. On any failure the temp file is
// removed, the live file is left as it was and ErrStoreUnavailable is returned.
func (x *File) SaveFacts(ctx context.Context, facts []*model.Fact) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to create store directory",
			goerr.V("dir", dir), goerr.V("error", err.Error()))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(x.path)+".*.tmp")
	if err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to create temp file",
			goerr.V("dir", dir), goerr.V("error", err.Error()))
	}
	tmpPath := tmp.Name()

	fail := func(msg string, cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return goerr.Wrap(model.ErrStoreUnavailable, msg,
			goerr.V("path", x.path), goerr.V("temp", tmpPath), goerr.V("error", cause.Error()))
	}

	w := bufio.NewWriter(tmp)
	if err := EncodeFacts(w, facts); err != nil {
		return fail("failed to write facts", err)
	}
	if err := w.Flush(); err != nil {
		return fail("failed to flush facts", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("failed to sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to close temp file",
			goerr.V("temp", tmpPath), goerr.V("error", err.Error()))
	}

	if err := x.rename(tmpPath, x.path); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to replace fact store",
			goerr.V("path", x.path), goerr.V("temp", tmpPath), goerr.V("error", err.Error()))
	}

	syncDir(ctx, dir)
	logging.From(ctx).Debug("fact store saved", "path", x.path, "count", len(facts))
	return nil
}

// syncDir makes the rename durable. Some filesystems refuse fsync on a
// directory; that is logged and ignored.
func syncDir(ctx context.Context, dir string) {
	d, err := os.Open(dir)
	if err != nil {
		logging.From(ctx).Debug("failed to open store directory for sync", "dir", dir, "error", err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		logging.From(ctx).Debug("failed to sync store directory", "dir", dir, "error", err)
	}
}
