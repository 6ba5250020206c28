package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"scribe/internal/app"
	"scribe/internal/daemon"
	"scribe/internal/jobs"
	"scribe/internal/services"
	"scribe/internal/testsupport"
)

func newContainer(t *testing.T, opts ...testsupport.ConfigOption) *app.Container {
	t.Helper()
	c, err := app.New(testsupport.NewConfig(t, opts...), nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDaemonServesAPIAndPublishesDepth(t *testing.T) {
	c := newContainer(t)
	if err := c.Queue.Enqueue(context.Background(), jobs.ImportJob{MeetingID: "m-1", BlobURL: "x"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d, err := daemon.New(c, daemon.Options{DisableWorker: true, DepthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status()
	if !status.Running || status.APIAddress == "" || status.Worker != nil {
		t.Fatalf("unexpected status %+v", status)
	}
	resp, err := http.Get("http://" + status.APIAddress + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(c.Metrics.QueueMessages.WithLabelValues("visible")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("queue depth gauge never published")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := app.New(cfg, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })

	d1, err := daemon.New(first, daemon.Options{DisableWorker: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d1.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d1.Stop()

	d2, err := daemon.New(first, daemon.Options{DisableWorker: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d2.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention, got %v", err)
	}
}

func TestDaemonRequiresLLMForWorkers(t *testing.T) {
	c := newContainer(t)
	if _, err := daemon.New(c, daemon.Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDaemonStopsWorker(t *testing.T) {
	c := newContainer(t, testsupport.WithLLMKey("sk-test", "http://127.0.0.1:1"))
	c.Config.Queue.PollInterval = 1

	d, err := daemon.New(c, daemon.Options{ShutdownGrace: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.Status().Worker == nil {
		t.Fatal("expected worker status")
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if d.Status().Running {
		t.Fatal("daemon still running after Stop")
	}
}

func TestDaemonSweepsStaleScratchDirectories(t *testing.T) {
	c := newContainer(t)
	stale := filepath.Join(c.Config.ScratchDir(), "scribe-transcribe-old")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	d, err := daemon.New(c, daemon.Options{DisableWorker: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale scratch directory should be removed, stat err=%v", err)
	}
}
