package voices_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/meetings"
	"scribe/internal/storage"
	"scribe/internal/voices"
)

func TestSyncDownloadsAndRegistersSamples(t *testing.T) {
	ctx := context.Background()
	store, err := storage.New(storage.Options{Root: t.TempDir(), Container: "recordings", BaseURL: "http://127.0.0.1:7487/blobs"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	for name, content := range map[string]string{
		"voices/intro_product_owner.mp3": "po",
		"voices/intro_ceo.mp3":           "ceo",
		"voices/readme.txt":              "skip",
		"m-1/intro_fake.mp3":             "outside prefix",
	} {
		if _, err := store.PutBlob(ctx, name, []byte(content), ""); err != nil {
			t.Fatalf("PutBlob: %v", err)
		}
	}
	repo, err := meetings.Open(filepath.Join(t.TempDir(), "meetings.db"))
	if err != nil {
		t.Fatalf("meetings.Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	introDir := filepath.Join(t.TempDir(), "voices")
	syncer := voices.NewSyncer(store, repo, introDir, "", nil)

	samples, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(samples) != 2 || samples[0].DisplayName != "Ceo" || samples[1].DisplayName != "Product Owner" {
		t.Fatalf("unexpected samples %+v", samples)
	}
	data, err := os.ReadFile(filepath.Join(introDir, "intro_product_owner.mp3"))
	if err != nil || string(data) != "po" {
		t.Fatalf("expected sample on disk, got %q (%v)", data, err)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[1].VoiceSample != filepath.Join(introDir, "intro_product_owner.mp3") {
		t.Fatalf("unexpected users %+v", users)
	}

	again, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	for _, sample := range again {
		if sample.Downloaded {
			t.Fatalf("expected unchanged sample %s to be skipped", sample.BlobName)
		}
	}
}
