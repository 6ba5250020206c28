package testsupport

import (
	"testing"

	"scribe/internal/config"
	"scribe/internal/meetings"
	"scribe/internal/queue"
	"scribe/internal/storage"
)

// MustOpenQueue opens the configured queue for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	opts = append([]queue.Option{queue.WithName(cfg.Queue.Name), queue.WithMaxDeliveries(cfg.Queue.MaxDeliveries)}, opts...)
	store, err := queue.Open(cfg.QueueDBPath(), opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenRepository opens the meetings repository for tests and registers
// cleanup.
func MustOpenRepository(t testing.TB, cfg *config.Config, opts ...meetings.Option) *meetings.Store {
	t.Helper()

	repo, err := meetings.Open(cfg.MeetingsDBPath(), opts...)
	if err != nil {
		t.Fatalf("meetings.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

// MustOpenStorage builds the blob store described by cfg.
func MustOpenStorage(t testing.TB, cfg *config.Config) *storage.LocalStore {
	t.Helper()

	store, err := storage.NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("storage.NewFromConfig: %v", err)
	}
	return store
}
