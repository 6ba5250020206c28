// Package voices keeps the local intro sample directory in step with the
// voice samples uploaded to blob storage and registers one user per sample.
package voices

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/alignment"
	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/meetings"
	"scribe/internal/services"
	"scribe/internal/storage"
)

// BlobPrefix is where voice samples live inside the blob container.
const BlobPrefix = "voices/"

const lockRetryInterval = 200 * time.Millisecond

// BlobSource lists and downloads stored blobs.
type BlobSource interface {
	List(ctx context.Context, prefix string) ([]storage.BlobInfo, error)
	DownloadBlob(ctx context.Context, uri string) ([]byte, error)
}

// Registrar records a voice profile for a display name.
type Registrar interface {
	RegisterVoiceProfile(ctx context.Context, displayName, samplePath string) (meetings.User, error)
}

// Sample is one synced voice sample.
type Sample struct {
	DisplayName string
	BlobName    string
	LocalPath   string
	Downloaded  bool
}

// Syncer copies intro samples from blob storage into the intro directory.
type Syncer struct {
	source    BlobSource
	registrar Registrar
	dir       string
	pattern   string
	logger    *slog.Logger
}

// NewSyncer builds a syncer writing into dir. registrar may be nil.
func NewSyncer(source BlobSource, registrar Registrar, dir, pattern string, logger *slog.Logger) *Syncer {
	if pattern == "" {
		pattern = alignment.DefaultPattern
	}
	return &Syncer{
		source:    source,
		registrar: registrar,
		dir:       dir,
		pattern:   pattern,
		logger:    logging.NewComponentLogger(logger, "voices"),
	}
}

// Sync downloads samples that are missing locally or whose size changed,
// then registers a user per sample. Individual download failures are logged
// and skipped. The intro directory is locked for the duration so concurrent
// syncs (daemon and CLI) never interleave writes.
func (s *Syncer) Sync(ctx context.Context) ([]Sample, error) {
	if s.dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "voices", "sync", "intro directory is not configured", nil)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "voices", "sync", "create intro directory", err)
	}
	lock := flock.New(filepath.Join(s.dir, ".sync.lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("lock intro directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock intro directory: %s is busy", s.dir)
	}
	defer func() { _ = lock.Unlock() }()

	blobs, err := s.source.List(ctx, BlobPrefix)
	if err != nil {
		return nil, err
	}
	var samples []Sample
	for _, blob := range blobs {
		base := path.Base(blob.Name)
		if ok, _ := filepath.Match(s.pattern, base); !ok {
			continue
		}
		name := alignment.RoleFromFilename(base)
		if name == "" {
			continue
		}
		sample := Sample{DisplayName: name, BlobName: blob.Name, LocalPath: filepath.Join(s.dir, base)}
		if info, statErr := os.Stat(sample.LocalPath); statErr != nil || info.Size() != blob.Size {
			data, err := s.source.DownloadBlob(ctx, blob.URI)
			if err != nil {
				logging.WarnWithContext(s.logger, "voice sample download failed", "voice_sync_failed",
					logging.String("blob", blob.Name),
					logging.Error(err),
					logging.String(logging.FieldImpact, "speaker will appear as an anonymous label"),
				)
				continue
			}
			if err := fileutil.WriteFileAtomic(sample.LocalPath, data, 0o644); err != nil {
				return samples, fmt.Errorf("write voice sample: %w", err)
			}
			sample.Downloaded = true
		}
		samples = append(samples, sample)
	}

	if s.registrar != nil {
		for _, sample := range samples {
			if _, err := s.registrar.RegisterVoiceProfile(ctx, sample.DisplayName, sample.LocalPath); err != nil {
				return samples, fmt.Errorf("register voice profile %q: %w", sample.DisplayName, err)
			}
		}
	}

	downloaded := 0
	for _, sample := range samples {
		if sample.Downloaded {
			downloaded++
		}
	}
	s.logger.Info("voice samples synced",
		logging.Int("samples", len(samples)),
		logging.Int("downloaded", downloaded),
		logging.String(logging.FieldEventType, "voice_sync_complete"),
	)
	return samples, nil
}
