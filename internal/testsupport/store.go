package testsupport

import (
	"testing"

	"vidqueue/internal/config"
	"vidqueue/internal/jobstore"
)

// MustOpenStore opens the history database for cfg and closes it when the
// test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()
	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
