package testsupport

import (
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/coord"
	"reelsmith/internal/outbox"
	"reelsmith/internal/projectstate"
)

// MustOpenStore opens a projectstate.Store rooted at the config's state dir.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...projectstate.Option) *projectstate.Store {
	t.Helper()

	base := []projectstate.Option{
		projectstate.WithCoordinator(coord.New(
			coord.WithRetryInterval(cfg.LockRetryInterval()),
			coord.WithTimeout(cfg.LockTimeout()),
		)),
		projectstate.WithDefaultGeneration(projectstate.GenerationVersion(cfg.Generation.DefaultVersion)),
	}
	store, err := projectstate.New(cfg.Paths.StateDir, append(base, opts...)...)
	if err != nil {
		t.Fatalf("projectstate.New: %v", err)
	}
	return store
}

// MustOpenOutbox opens the config's outbox database and registers cleanup.
func MustOpenOutbox(t testing.TB, cfg *config.Config, opts ...outbox.Option) *outbox.Store {
	t.Helper()

	store, err := outbox.Open(cfg.Paths.OutboxPath, opts...)
	if err != nil {
		t.Fatalf("outbox.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
