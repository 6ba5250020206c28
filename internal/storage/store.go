package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/textutil"
)

// DefaultMaxRemoteBytes caps a remote blob download.
const DefaultMaxRemoteBytes = 2 << 30

// ErrForeignURI marks a blob URI outside the configured container.
var ErrForeignURI = errors.New("blob URI does not belong to configured container")

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name    string
	URI     string
	Size    int64
	ModTime time.Time
}

// Options configures a LocalStore.
type Options struct {
	Root        string
	Container   string
	BaseURL     string
	AllowRemote bool
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// MaxRemoteBytes defaults to DefaultMaxRemoteBytes.
	MaxRemoteBytes int64
}

// LocalStore implements the blob storage port on the local filesystem.
type LocalStore struct {
	root        string
	container   string
	baseURL     string
	allowRemote bool
	maxRemote   int64
	client      *http.Client
	logger      *slog.Logger
}

// New validates opts and creates the container directory.
func New(opts Options) (*LocalStore, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "blob directory is required", nil)
	}
	container := strings.TrimSpace(opts.Container)
	if container == "" || container != textutil.SanitizeFileName(container) || strings.ContainsAny(container, " ") {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init",
			fmt.Sprintf("invalid container name %q", opts.Container), nil)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init",
			fmt.Sprintf("invalid public base url %q", opts.BaseURL), err)
	}
	if err := os.MkdirAll(filepath.Join(root, container), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "create container directory", err)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	maxRemote := opts.MaxRemoteBytes
	if maxRemote <= 0 {
		maxRemote = DefaultMaxRemoteBytes
	}
	return &LocalStore{
		root:        root,
		container:   container,
		baseURL:     base,
		allowRemote: opts.AllowRemote,
		maxRemote:   maxRemote,
		client:      client,
		logger:      logging.NewComponentLogger(opts.Logger, "storage"),
	}, nil
}

// NewFromConfig builds a store from the storage and paths sections.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*LocalStore, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "config is required", nil)
	}
	base := cfg.Storage.PublicBaseURL
	if strings.TrimSpace(base) == "" {
		base = "http://" + cfg.Paths.APIBind + "/blobs"
	}
	return New(Options{
		Root:        cfg.Paths.BlobDir,
		Container:   cfg.Storage.Container,
		BaseURL:     base,
		AllowRemote: cfg.Storage.AllowRemote,
		Timeout:     time.Duration(cfg.Storage.DownloadTimeout) * time.Second,
		Logger:      logger,
	})
}

// Container returns the container name.
func (s *LocalStore) Container() string { return s.container }

// URI returns the public URI for a blob name.
func (s *LocalStore) URI(name string) string {
	return s.baseURL + "/" + s.container + "/" + strings.TrimLeft(name, "/")
}

// BlobName builds the upload name for a meeting file. Path components and
// unsafe characters are stripped and spaces become underscores.
func BlobName(meetingID, filename string) string {
	safe := textutil.SanitizeFileName(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	safe = strings.ReplaceAll(safe, " ", "_")
	if safe == "" || safe == "." || safe == "/" {
		safe = "file-" + uuid.NewString()
	}
	return textutil.SanitizeFileName(meetingID) + "/" + safe
}

// SaveFile stores an uploaded meeting file and returns its URI.
func (s *LocalStore) SaveFile(ctx context.Context, meetingID, filename string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(meetingID) == "" || textutil.SanitizeFileName(meetingID) != strings.TrimSpace(meetingID) {
		return "", services.Wrap(services.ErrValidation, "storage", "save", fmt.Sprintf("invalid meeting id %q", meetingID), nil)
	}
	return s.PutBlob(ctx, BlobName(meetingID, filename), data, contentType)
}

// PutBlob writes data under name, replacing any existing blob.
func (s *LocalStore) PutBlob(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "save", "write blob", err)
	}
	uri := s.URI(name)
	s.logger.Info("blob stored",
		logging.String("blob", name),
		logging.Int("bytes", len(data)),
		logging.String("content_type", contentType),
		logging.String(logging.FieldEventType, "blob_stored"),
	)
	return uri, nil
}

// Resolve maps a blob name to its file path, rejecting names that escape the
// container.
func (s *LocalStore) Resolve(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if clean == "/" || strings.Contains(name, "\x00") {
		return "", services.Wrap(services.ErrValidation, "storage", "resolve", fmt.Sprintf("invalid blob name %q", name), nil)
	}
	for _, part := range strings.Split(strings.Trim(name, "/"), "/") {
		if part == ".." {
			return "", services.Wrap(services.ErrValidation, "storage", "resolve",
				fmt.Sprintf("blob name %q escapes container", name), nil)
		}
	}
	base := filepath.Join(s.root, s.container)
	target := filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", services.Wrap(services.ErrValidation, "storage", "resolve",
			fmt.Sprintf("blob name %q escapes container", name), err)
	}
	return target, nil
}

// NameFromURI returns the blob name for a URI inside the container.
func (s *LocalStore) NameFromURI(uri string) (string, error) {
	prefix := s.baseURL + "/" + s.container + "/"
	if !strings.HasPrefix(uri, prefix) {
		return "", ErrForeignURI
	}
	name := strings.TrimPrefix(uri, prefix)
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrForeignURI, err)
	}
	return unescaped, nil
}

// CheckURI reports whether DownloadBlob would accept uri, without reading it.
func (s *LocalStore) CheckURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return services.Wrap(services.ErrValidation, "storage", "check", "blob url is required", nil)
	}
	if name, err := s.NameFromURI(uri); err == nil {
		_, err = s.Resolve(name)
		return err
	}
	if s.allowRemote && isHTTP(uri) {
		return nil
	}
	return services.Wrap(services.ErrValidation, "storage", "check", uri, ErrForeignURI)
}

// DownloadBlob returns the bytes behind uri.
func (s *LocalStore) DownloadBlob(ctx context.Context, uri string) ([]byte, error) {
	if err := s.CheckURI(uri); err != nil {
		return nil, err
	}
	name, err := s.NameFromURI(uri)
	if err != nil {
		return s.fetchRemote(ctx, uri)
	}
	target, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "storage", "download", fmt.Sprintf("blob %q not found", name), err)
		}
		return nil, services.Wrap(services.ErrTransient, "storage", "download", "read blob", err)
	}
	return data, nil
}

func (s *LocalStore) fetchRemote(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "storage", "download", "build request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "download", "fetch remote blob", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "storage", "download", fmt.Sprintf("remote blob %s not found", uri), nil)
	case resp.StatusCode >= 300:
		return nil, services.Wrap(services.ErrTransient, "storage", "download",
			fmt.Sprintf("remote blob returned %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxRemote+1))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "download", "read remote blob", err)
	}
	if int64(len(data)) > s.maxRemote {
		return nil, services.Wrap(services.ErrValidation, "storage", "download",
			fmt.Sprintf("remote blob %s exceeds %d bytes", uri, s.maxRemote), nil)
	}
	s.logger.Debug("remote blob fetched", logging.String("url", uri), logging.Int("bytes", len(data)))
	return data, nil
}

// List returns blobs whose name starts with prefix, sorted by name.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	base := filepath.Join(s.root, s.container)
	var blobs []BlobInfo
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		blobs = append(blobs, BlobInfo{Name: name, URI: s.URI(name), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", "walk container", err)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

func isHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
