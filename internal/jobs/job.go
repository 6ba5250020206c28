package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedJob marks a queue payload that cannot be turned into an ImportJob.
var ErrMalformedJob = errors.New("malformed import job")

// ImportJob is the unit of work carried by one queue message.
type ImportJob struct {
	MeetingID        string  `json:"meeting_id"`
	Title            string  `json:"title"`
	StartedAt        string  `json:"started_at"`
	BlobURL          string  `json:"blob_url"`
	OriginalFilename *string `json:"original_filename"`
}

// Filename returns the original filename when present, else the last path
// segment of the blob URL.
func (j ImportJob) Filename() string {
	if j.OriginalFilename != nil && strings.TrimSpace(*j.OriginalFilename) != "" {
		return strings.TrimSpace(*j.OriginalFilename)
	}
	trimmed := strings.TrimRight(j.BlobURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

// Marshal serializes the job into the flat JSON message body.
func Marshal(job ImportJob) ([]byte, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

// Unmarshal decodes a queue message body. Unknown fields, missing required
// fields and non-string values are rejected with ErrMalformedJob.
func Unmarshal(body []byte) (ImportJob, error) {
	var job ImportJob
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&job); err != nil {
		return ImportJob{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if decoder.More() {
		return ImportJob{}, fmt.Errorf("%w: trailing data after job object", ErrMalformedJob)
	}
	if err := job.validate(); err != nil {
		return ImportJob{}, err
	}
	return job, nil
}

func (j ImportJob) validate() error {
	switch {
	case strings.TrimSpace(j.MeetingID) == "":
		return fmt.Errorf("%w: meeting_id is required", ErrMalformedJob)
	case strings.TrimSpace(j.BlobURL) == "":
		return fmt.Errorf("%w: blob_url is required", ErrMalformedJob)
	}
	return nil
}
