package memory

import (
	"context"
	"io"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/repository"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Export writes a JSONL snapshot of the store to key and returns the number
// of facts written
func (u *UseCase) Export(ctx context.Context, storage adapter.Storage, key string) (int, error) {
	facts, err := u.load(ctx)
	if err != nil {
		return 0, err
	}

	w, err := storage.Put(ctx, key)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open snapshot writer", goerr.V("key", key))
	}
	if err := repository.EncodeFacts(w, facts); err != nil {
		_ = w.Close()
		return 0, goerr.Wrap(err, "failed to write snapshot", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return 0, goerr.Wrap(err, "failed to commit snapshot", goerr.V("key", key))
	}

	logging.From(ctx).Info("memory exported", "key", key, "count", len(facts))
	return len(facts), nil
}

// Restore replaces the store with the snapshot at key. Records sharing a
// fingerprint are collapsed to the first one. Returns the number of facts kept.
func (u *UseCase) Restore(ctx context.Context, storage adapter.Storage, key string) (int, error) {
	r, err := storage.Get(ctx, key)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open snapshot", goerr.V("key", key))
	}
	defer func() { _ = r.Close() }()

	facts, err := repository.DecodeFacts(ctx, io.LimitReader(r, maxSnapshotSize))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read snapshot", goerr.V("key", key))
	}

	seen := make(map[string]struct{}, len(facts))
	kept := make([]*model.Fact, 0, len(facts))
	for _, f := range facts {
		if _, ok := seen[f.Fingerprint]; ok || f.Fingerprint == "" {
			continue
		}
		seen[f.Fingerprint] = struct{}{}
		kept = append(kept, f)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.save(ctx, kept); err != nil {
		return 0, err
	}

	logging.From(ctx).Info("memory restored", "key", key, "count", len(kept), "dropped", len(facts)-len(kept))
	return len(kept), nil
}

const maxSnapshotSize = 512 * 1024 * 1024
