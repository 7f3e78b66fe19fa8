package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/normalize"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

// ErrLocked is returned when another batch command holds the corpus lock.
var ErrLocked = eris.New("another batch command is already running against this corpus")

// openStore validates the config for mode and opens the migrated store.
func openStore(ctx context.Context, c *config.Config, mode string) (store.Store, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// acquireLock takes the corpus lock so that only one batch command writes at
// a time. The returned func releases it.
func acquireLock(path string) (func(), error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "acquire lock %s", path)
	}
	if !ok {
		return nil, eris.Wrap(ErrLocked, path)
	}
	zap.L().Debug("acquired corpus lock", zap.String("lock", path))
	return func() {
		if err := lock.Unlock(); err != nil {
			zap.L().Warn("failed to release corpus lock", zap.String("lock", path), zap.Error(err))
		}
	}, nil
}

// loadNormalizer returns a normalizer over the configured alias table, or
// the embedded one when no path is set.
func loadNormalizer(c *config.Config) (*normalize.Normalizer, error) {
	if c.Aliases.Path == "" {
		return normalize.New(normalize.DefaultAliases()), nil
	}
	t, err := normalize.LoadAliases(c.Aliases.Path)
	if err != nil {
		return nil, err
	}
	return normalize.New(t), nil
}

// openInput opens path for reading; "-" is standard input.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
