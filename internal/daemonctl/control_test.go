package daemonctl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/testsupport"
)

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:7487": "http://127.0.0.1:7487",
		"0.0.0.0:80":     "http://127.0.0.1:80",
		":9000":          "http://127.0.0.1:9000",
		"[::]:7487":      "http://127.0.0.1:7487",
	}
	for bind, want := range cases {
		assert.Equal(t, want, BaseURL(bind), bind)
	}
}

func TestStatusFromHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			_, _ = w.Write([]byte(`{"status":"ok","pid":4242}`))
		case "/api/queue":
			_, _ = w.Write([]byte(`{"visible":3,"leased":1,"deadLettered":0}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = strings.TrimPrefix(srv.URL, "http://")

	snap := New(cfg).Status(context.Background())
	require.True(t, snap.Running)
	assert.Equal(t, 4242, snap.PID)
	require.NotNil(t, snap.Queue)
	assert.Equal(t, 3, snap.Queue.Visible)
	assert.Equal(t, 1, snap.Queue.Leased)
}

func TestStatusFallsBackToPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	ctl := New(cfg)

	assert.False(t, ctl.Status(context.Background()).Running)

	require.NoError(t, os.WriteFile(PIDPath(cfg), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644))
	snap := ctl.Status(context.Background())
	assert.True(t, snap.Running)
	assert.Equal(t, os.Getpid(), snap.PID)
	assert.Nil(t, snap.Health)
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"

	_, err := New(cfg).Stop(context.Background(), time.Second)
	assert.True(t, errors.Is(err, ErrDaemonNotRunning), "got %v", err)
}

func TestStopTerminatesProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"

	proc := exec.Command("sleep", "30")
	require.NoError(t, proc.Start())
	exited := make(chan struct{})
	go func() {
		_ = proc.Wait()
		close(exited)
	}()
	require.NoError(t, os.WriteFile(PIDPath(cfg), []byte(strconv.Itoa(proc.Process.Pid)), 0o644))

	result, err := New(cfg).Stop(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, proc.Process.Pid, result.PID)
	assert.False(t, result.ForcedKill)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process still running")
	}
}

func TestStopRefusesCurrentProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	require.NoError(t, os.WriteFile(PIDPath(cfg), []byte(strconv.Itoa(os.Getpid())), 0o644))

	_, err := New(cfg).Stop(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing")
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	path := t.TempDir() + "/scribed.pid"
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	_, err := ReadPID(path)
	assert.Error(t, err)
}
