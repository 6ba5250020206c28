// Package daemonctl starts, probes and stops a background scribe daemon from
// the CLI. The daemon is found through its HTTP health endpoint and the pid
// file it writes under the log directory.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"scribe/internal/api"
	"scribe/internal/config"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning reports that no daemon answered and no live pid exists.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Health is the /healthz payload.
type Health struct {
	Status string `json:"status"`
	PID    int    `json:"pid"`
	Error  string `json:"error,omitempty"`
}

// Snapshot combines the pid file with what the daemon reports over HTTP.
type Snapshot struct {
	Running bool
	PID     int
	BaseURL string
	Health  *Health
	Queue   *api.QueueStatus
}

// StartState describes how Start reached a running daemon.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StopResult captures how the daemon was stopped.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Controller talks to the daemon configured by cfg.
type Controller struct {
	cfg    *config.Config
	client *http.Client
}

// New returns a controller for cfg.
func New(cfg *config.Config) *Controller {
	return &Controller{cfg: cfg, client: &http.Client{Timeout: 3 * time.Second}}
}

// PIDPath is the pid file the daemon writes at startup.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "scribed.pid")
}

// BaseURL returns the loopback URL for the configured API bind address.
func BaseURL(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return "http://" + bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Probe fetches /healthz. A connection failure means no daemon is listening.
func (c *Controller) Probe(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.getJSON(ctx, "/healthz", &health, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &health, nil
}

// Status reports whether a daemon is running, preferring the HTTP view and
// falling back to the pid file when the API does not answer.
func (c *Controller) Status(ctx context.Context) Snapshot {
	snap := Snapshot{BaseURL: BaseURL(c.cfg.Paths.APIBind)}
	if health, err := c.Probe(ctx); err == nil {
		snap.Running = true
		snap.Health = health
		snap.PID = health.PID
		var queue api.QueueStatus
		if err := c.getJSON(ctx, "/api/queue", &queue, http.StatusOK); err == nil {
			snap.Queue = &queue
		}
		return snap
	}
	if pid, err := ReadPID(PIDPath(c.cfg)); err == nil && processAlive(pid) {
		snap.Running = true
		snap.PID = pid
	}
	return snap
}

// Start launches `<executable> daemon run` detached unless a daemon already
// answers, then waits up to timeout for its health endpoint.
func (c *Controller) Start(ctx context.Context, executable, configPath string, timeout time.Duration) (StartState, error) {
	if _, err := c.Probe(ctx); err == nil {
		return StartStateAlreadyRunning, nil
	}
	if err := Launch(executable, configPath, c.cfg.Paths.LogDir); err != nil {
		return "", err
	}
	if err := c.waitFor(ctx, timeout, func() bool {
		_, err := c.Probe(ctx)
		return err == nil
	}); err != nil {
		return "", fmt.Errorf("daemon failed to start (see %s): %w",
			filepath.Join(c.cfg.Paths.LogDir, "scribed.out"), err)
	}
	return StartStateStarted, nil
}

// Stop sends SIGTERM and waits up to grace for the process to exit, then
// kills it. The daemon drains in-flight jobs on SIGTERM, so grace should
// exceed its shutdown grace period.
func (c *Controller) Stop(ctx context.Context, grace time.Duration) (StopResult, error) {
	pid := 0
	if health, err := c.Probe(ctx); err == nil {
		pid = health.PID
	}
	if pid <= 0 {
		if filePID, err := ReadPID(PIDPath(c.cfg)); err == nil {
			pid = filePID
		}
	}
	if pid <= 0 || !processAlive(pid) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	if err := c.waitFor(ctx, grace, func() bool { return !processAlive(pid) }); err == nil {
		return result, nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	_ = os.Remove(PIDPath(c.cfg))
	result.ForcedKill = true
	return result, nil
}

// Launch starts a detached daemon process in its own session. Its stdout and
// stderr go to scribed.out in logDir.
func Launch(executable, configPath, logDir string) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon", "run"}
	if cfg := strings.TrimSpace(configPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	out, err := os.OpenFile(filepath.Join(logDir, "scribed.out"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon output: %w", err)
	}
	defer out.Close()

	proc := exec.Command(executable, args...)
	proc.Stdout = out
	proc.Stderr = out
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// ReadPID parses a pid file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (c *Controller) waitFor(ctx context.Context, timeout time.Duration, done func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if done() {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timed out")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (c *Controller) getJSON(ctx context.Context, path string, target any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, BaseURL(c.cfg.Paths.APIBind)+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
