package api

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/meetings"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.Queue != nil {
		if _, err := s.opts.Queue.Stats(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pid": os.Getpid()})
}

// handleUpload stores a multipart "file" under meetingId (generated when
// absent). With submit=true the upload is queued for import in the same call.
func (s *Server) handleUpload(c *gin.Context) {
	if s.opts.Uploads == nil {
		s.unavailable(c, "blob storage")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeMessage(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		s.writeMessage(c, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		s.writeMessage(c, http.StatusBadRequest, "upload filename is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		s.writeError(c, services.Wrap(services.ErrTransient, "api", "upload", "open upload", err))
		return
	}
	data, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		s.writeError(c, services.Wrap(services.ErrTransient, "api", "upload", "read upload", err))
		return
	}

	meetingID := strings.TrimSpace(c.PostForm("meetingId"))
	if meetingID == "" {
		meetingID = uuid.NewString()
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	uri, err := s.opts.Uploads.SaveFile(c.Request.Context(), meetingID, filename, data, contentType)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := UploadResponse{MeetingID: meetingID, BlobURL: uri, Bytes: len(data)}
	submit, _ := strconv.ParseBool(c.DefaultPostForm("submit", "false"))
	if !submit {
		c.JSON(http.StatusCreated, resp)
		return
	}
	if s.opts.Submitter == nil {
		s.unavailable(c, "job submission")
		return
	}
	if _, err := s.opts.Submitter.Submit(c.Request.Context(), workflow.Request{
		MeetingID:        meetingID,
		Title:            c.PostForm("title"),
		StartedAt:        c.PostForm("startedAt"),
		BlobURL:          uri,
		OriginalFilename: filename,
	}); err != nil {
		s.writeError(c, err)
		return
	}
	resp.Status = string(jobs.StatusQueued)
	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) handleImport(c *gin.Context) {
	if s.opts.Submitter == nil {
		s.unavailable(c, "job submission")
		return
	}
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeMessage(c, http.StatusBadRequest, "invalid import request: "+err.Error())
		return
	}
	meetingID, err := s.opts.Submitter.Submit(c.Request.Context(), workflow.Request{
		MeetingID:        req.MeetingID,
		Title:            req.Title,
		StartedAt:        req.StartedAt,
		BlobURL:          req.BlobURL,
		OriginalFilename: req.OriginalFilename,
	})
	if err != nil {
		var transition *jobs.TransitionError
		if errors.As(err, &transition) {
			s.writeMessage(c, http.StatusConflict, err.Error())
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ImportResponse{MeetingID: meetingID, Status: string(jobs.StatusQueued)})
}

func (s *Server) handleListMeetings(c *gin.Context) {
	if s.opts.Meetings == nil {
		s.unavailable(c, "meeting repository")
		return
	}
	filter := meetings.ListFilter{Limit: 100}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeMessage(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	for _, value := range c.QueryArray("status") {
		status, err := jobs.ParseStatus(value)
		if err != nil {
			s.writeMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	list, err := s.opts.Meetings.ListMeetings(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]Meeting, 0, len(list))
	for _, m := range list {
		out = append(out, FromMeeting(m))
	}
	c.JSON(http.StatusOK, MeetingListResponse{Meetings: out})
}

func (s *Server) handleGetMeeting(c *gin.Context) {
	if s.opts.Meetings == nil {
		s.unavailable(c, "meeting repository")
		return
	}
	ctx := c.Request.Context()
	meeting, err := s.opts.Meetings.GetMeeting(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	tasks, err := s.opts.Meetings.ListTasks(ctx, meetings.TaskFilter{MeetingID: meeting.ID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	detail := MeetingDetail{Meeting: FromMeeting(*meeting), Tasks: make([]Task, 0, len(tasks))}
	for _, task := range tasks {
		detail.Tasks = append(detail.Tasks, FromTask(task))
	}
	if include, _ := strconv.ParseBool(c.Query("transcript")); include {
		detail.Transcript = meeting.Transcript
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleQueue(c *gin.Context) {
	if s.opts.Queue == nil {
		s.unavailable(c, "queue")
		return
	}
	stats, err := s.opts.Queue.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	var worker *workflow.WorkerStatus
	if s.opts.WorkerStatus != nil {
		status := s.opts.WorkerStatus()
		worker = &status
	}
	c.JSON(http.StatusOK, FromQueueStats(stats, worker))
}

// handleBlob serves a stored blob so blob URIs handed to submitters resolve.
func (s *Server) handleBlob(c *gin.Context) {
	if s.opts.Blobs == nil {
		s.unavailable(c, "blob storage")
		return
	}
	if c.Param("container") != s.opts.Blobs.Container() {
		s.writeMessage(c, http.StatusNotFound, "blob not found")
		return
	}
	target, err := s.opts.Blobs.Resolve(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		s.writeMessage(c, http.StatusNotFound, "blob not found")
		return
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(logging.WithContext(c.Request.Context(), s.logger), "blob stat failed", "blob_stat_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check blob_dir permissions"),
			)
		}
		s.writeMessage(c, http.StatusNotFound, "blob not found")
		return
	}
	c.File(target)
}
