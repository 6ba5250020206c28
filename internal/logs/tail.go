package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	pollInterval = 250 * time.Millisecond
	maxLineBytes = 1024 * 1024
)

// Request selects a window of the log file.
type Request struct {
	// Offset < 0 means "the last Lines lines".
	Offset int64
	Lines  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// Match keeps only lines containing the substring.
	Match string
}

// Page is one read; pass Offset back to continue.
type Page struct {
	Lines  []string
	Offset int64
}

// Read returns the lines selected by req. A missing file yields an empty page.
func Read(ctx context.Context, path string, req Request) (Page, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Page{}, nil
	}
	if err != nil {
		return Page{Offset: req.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Page{Offset: req.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var page Page
	if req.Offset < 0 {
		page, err = lastLines(path, req.Lines, req.Match)
	} else {
		offset := req.Offset
		if offset > info.Size() {
			offset = 0
		}
		page, err = readFrom(path, offset, req.Match)
	}
	if err != nil || len(page.Lines) > 0 || !req.Follow || req.Wait <= 0 {
		return page, err
	}
	return waitForLines(ctx, path, page.Offset, req)
}

func lastLines(path string, limit int, match string) (Page, error) {
	file, err := os.Open(path)
	if err != nil {
		return Page{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Page{}, fmt.Errorf("seek log file: %w", err)
		}
		return Page{Offset: end}, nil
	}

	ring := make([]string, 0, limit)
	offset, err := scan(file, match, func(line string) {
		if len(ring) == limit {
			copy(ring, ring[1:])
			ring = ring[:limit-1]
		}
		ring = append(ring, line)
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Lines: ring, Offset: offset}, nil
}

func readFrom(path string, offset int64, match string) (Page, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Page{}, nil
	}
	if err != nil {
		return Page{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Page{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	end, err := scan(file, match, func(line string) { lines = append(lines, line) })
	if err != nil {
		return Page{Offset: offset}, err
	}
	return Page{Lines: lines, Offset: end}, nil
}

// scan feeds matching complete lines to emit and returns the offset just
// past the last complete line, so a partially written line is read again.
func scan(file *os.File, match string, emit func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	consumed := start
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		if match == "" || strings.Contains(line, match) {
			emit(line)
		}
	}
}

func waitForLines(ctx context.Context, path string, offset int64, req Request) (Page, error) {
	deadline := time.Now().Add(req.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Page{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}

		if info, err := os.Stat(path); err == nil && info.Size() < offset {
			offset = 0
		}
		page, err := readFrom(path, offset, req.Match)
		if err != nil {
			return page, err
		}
		offset = page.Offset
		if len(page.Lines) > 0 || time.Now().After(deadline) {
			return page, nil
		}
	}
}
