package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/logging"
)

func makeWorkDir(t *testing.T, parent, name string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "audio.wav"), make([]byte, 128), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if age > 0 {
		when := time.Now().Add(-age)
		if err := os.Chtimes(dir, when, when); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	return dir
}

func TestCleanStaleMissingDirectory(t *testing.T) {
	for _, dir := range []string{"", "   ", filepath.Join(t.TempDir(), "absent")} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for %q, got %+v", dir, result)
		}
	}
}

func TestCleanStaleRemovesOnlyOldDirectories(t *testing.T) {
	root := t.TempDir()
	old := makeWorkDir(t, root, "scribe-transcribe-1", 2*time.Hour)
	recent := makeWorkDir(t, root, "scribe-transcribe-2", 0)
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	result := CleanStale(context.Background(), root, time.Hour, nil)
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("unexpected removals: %+v", result.Removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("old directory should be gone")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatal("recent directory should remain")
	}
	if _, err := os.Stat(filepath.Join(root, "stray.txt")); err != nil {
		t.Fatal("plain files are left alone")
	}
}

func TestCleanStaleStopsOnCanceledContext(t *testing.T) {
	root := t.TempDir()
	makeWorkDir(t, root, "a", 2*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := CleanStale(ctx, root, time.Hour, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", result.Removed)
	}
}

func TestListReportsSizes(t *testing.T) {
	root := t.TempDir()
	makeWorkDir(t, root, "job", 0)

	dirs, err := List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Name != "job" || dirs[0].Size != 128 {
		t.Fatalf("unexpected dirs: %+v", dirs)
	}
}
