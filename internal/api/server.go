package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"scribe/internal/logging"
	"scribe/internal/meetings"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

// DefaultMaxUploadBytes bounds multipart uploads.
const DefaultMaxUploadBytes int64 = 512 << 20

// Submitter queues import jobs.
type Submitter interface {
	Submit(ctx context.Context, req workflow.Request) (string, error)
}

// Uploader stores uploaded recordings and transcripts.
type Uploader interface {
	SaveFile(ctx context.Context, meetingID, filename string, data []byte, contentType string) (string, error)
}

// MeetingReader reads meetings and their tasks.
type MeetingReader interface {
	GetMeeting(ctx context.Context, meetingID string) (*meetings.Meeting, error)
	ListMeetings(ctx context.Context, filter meetings.ListFilter) ([]meetings.Meeting, error)
	ListTasks(ctx context.Context, filter meetings.TaskFilter) ([]meetings.StoredTask, error)
}

// QueueInspector reports queue depth.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// BlobResolver maps blob names inside a container to local files.
type BlobResolver interface {
	Container() string
	Resolve(name string) (string, error)
}

// Options wires a Server. Nil collaborators disable their routes' work and
// the routes answer 503.
type Options struct {
	Bind           string
	Submitter      Submitter
	Uploads        Uploader
	Meetings       MeetingReader
	Queue          QueueInspector
	Blobs          BlobResolver
	WorkerStatus   func() workflow.WorkerStatus
	Metrics        http.Handler
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "api")}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	engine.GET("/blobs/:container/*path", s.handleBlob)

	apiGroup := engine.Group("/api")
	apiGroup.POST("/uploads", s.handleUpload)
	apiGroup.POST("/meetings/import", s.handleImport)
	apiGroup.GET("/meetings", s.handleListMeetings)
	apiGroup.GET("/meetings/:id", s.handleGetMeeting)
	apiGroup.GET("/queue", s.handleQueue)

	s.engine = engine
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on the configured bind address and serves until ctx ends or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return services.Wrap(services.ErrConfiguration, "api", "listen", "paths.api_bind is empty", nil)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the bind address is free"),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
