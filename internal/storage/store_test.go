package storage_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/services"
	"scribe/internal/storage"
)

func newStore(t *testing.T, allowRemote bool) (*storage.LocalStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(storage.Options{
		Root:        root,
		Container:   "recordings",
		BaseURL:     "http://127.0.0.1:7487/blobs/",
		AllowRemote: allowRemote,
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return store, root
}

func TestSaveFileAndDownload(t *testing.T) {
	store, root := newStore(t, false)
	ctx := context.Background()

	uri, err := store.SaveFile(ctx, "m-1", "../../weekly sync.wav", []byte("RIFF"), "audio/wav")
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	want := "http://127.0.0.1:7487/blobs/recordings/m-1/weekly_sync.wav"
	if uri != want {
		t.Fatalf("uri = %q, want %q", uri, want)
	}
	if _, err := os.Stat(filepath.Join(root, "recordings", "m-1", "weekly_sync.wav")); err != nil {
		t.Fatalf("expected blob on disk: %v", err)
	}

	data, err := store.DownloadBlob(ctx, uri)
	if err != nil {
		t.Fatalf("DownloadBlob: %v", err)
	}
	if string(data) != "RIFF" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestBlobNameFallsBackForEmptyFilename(t *testing.T) {
	name := storage.BlobName("m-1", "")
	if !strings.HasPrefix(name, "m-1/file-") {
		t.Fatalf("unexpected fallback name %q", name)
	}
}

func TestSaveFileRejectsUnsafeMeetingID(t *testing.T) {
	store, _ := newStore(t, false)
	_, err := store.SaveFile(context.Background(), "../evil", "a.wav", []byte("x"), "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	store, _ := newStore(t, false)
	for _, name := range []string{"../secret", "m-1/../../x", "", "/"} {
		if _, err := store.Resolve(name); !errors.Is(err, services.ErrValidation) {
			t.Errorf("Resolve(%q) = %v, want validation error", name, err)
		}
	}
}

func TestDownloadRejectsForeignURI(t *testing.T) {
	store, _ := newStore(t, false)
	_, err := store.DownloadBlob(context.Background(), "https://example.com/recordings/m-1/a.wav")
	if !errors.Is(err, storage.ErrForeignURI) || !services.IsTerminal(err) {
		t.Fatalf("expected terminal foreign URI error, got %v", err)
	}
}

func TestDownloadMissingBlobIsNotFound(t *testing.T) {
	store, _ := newStore(t, false)
	_, err := store.DownloadBlob(context.Background(), store.URI("m-1/missing.wav"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDownloadRemoteWhenAllowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote transcript"))
	}))
	defer server.Close()

	store, _ := newStore(t, true)
	data, err := store.DownloadBlob(context.Background(), server.URL+"/meeting.txt")
	if err != nil {
		t.Fatalf("DownloadBlob: %v", err)
	}
	if string(data) != "remote transcript" {
		t.Fatalf("unexpected data %q", data)
	}
	if _, err := store.DownloadBlob(context.Background(), server.URL+"/missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for 404, got %v", err)
	}
}

func TestDownloadRemoteRejectsOversizedBlob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := 16
		if r.URL.Path == "/big.wav" {
			size = 17
		}
		_, _ = w.Write([]byte(strings.Repeat("x", size)))
	}))
	defer server.Close()

	store, err := storage.New(storage.Options{
		Root:           t.TempDir(),
		Container:      "recordings",
		BaseURL:        "http://127.0.0.1:7487/blobs/",
		AllowRemote:    true,
		MaxRemoteBytes: 16,
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	data, err := store.DownloadBlob(context.Background(), server.URL+"/big.wav")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for an oversized blob, got %v (%d bytes)", err, len(data))
	}

	data, err = store.DownloadBlob(context.Background(), server.URL+"/meeting.wav")
	if err != nil {
		t.Fatalf("DownloadBlob at the limit: %v", err)
	}
	if len(data) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(data))
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	store, _ := newStore(t, false)
	ctx := context.Background()
	for _, name := range []string{"voices/intro_ceo.mp3", "voices/intro_product_owner.mp3", "m-1/a.wav"} {
		if _, err := store.PutBlob(ctx, name, []byte(name), ""); err != nil {
			t.Fatalf("PutBlob: %v", err)
		}
	}
	blobs, err := store.List(ctx, "voices/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(blobs) != 2 || blobs[0].Name != "voices/intro_ceo.mp3" {
		t.Fatalf("unexpected listing %+v", blobs)
	}
	if blobs[1].URI != store.URI("voices/intro_product_owner.mp3") {
		t.Fatalf("unexpected uri %q", blobs[1].URI)
	}
}

func TestNewRejectsBadContainer(t *testing.T) {
	_, err := storage.New(storage.Options{Root: t.TempDir(), Container: "../x", BaseURL: "http://h/blobs"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
