package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"scribe/internal/config"
	"scribe/internal/jobs"
	"scribe/internal/meetings"
	"scribe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("HF_TOKEN", "")
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if env != nil && env.configPath != "" {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTranscript(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	path := filepath.Join(env.baseDir, "standup.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alice: I will send the report by Friday.\n"), 0o644))
	return path
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "scribe", "config.toml")

	out, err := runCLI(t, nil, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration")
	assert.Contains(t, out, "OPENROUTER_API_KEY")
	assert.FileExists(t, target)

	_, err = runCLI(t, nil, "config", "init", "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, nil, "config", "init", "--path", target, "--overwrite")
	require.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Config path: "+env.configPath)
	assert.Contains(t, out, env.cfg.QueueDBPath())
	assert.Contains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	env := setupCLITestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("[queue\nname = 1\n"), 0o644))

	_, err := runCLI(t, env, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestUploadThenListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	path := writeTranscript(t, env)

	out, err := runCLI(t, env, "upload", path, "--meeting-id", "m-cli", "--title", "Standup")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored ")
	assert.Contains(t, out, "Queued meeting m-cli")
	assert.FileExists(t, filepath.Join(env.cfg.Paths.BlobDir, env.cfg.Storage.Container, "m-cli", "standup.txt"))

	out, err = runCLI(t, env, "meetings", "list", "--format", "json")
	require.NoError(t, err)
	var list []meetings.Meeting
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "m-cli", list[0].ID)
	assert.Equal(t, jobs.StatusQueued, list[0].Status)

	out, err = runCLI(t, env, "meetings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "QUEUED")

	out, err = runCLI(t, env, "meetings", "show", "m-cli", "-o", "yaml")
	require.NoError(t, err)
	var view struct {
		Meeting meetings.Meeting      `yaml:"meeting"`
		Tasks   []meetings.StoredTask `yaml:"tasks"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Standup", view.Meeting.Title)
	assert.Empty(t, view.Tasks)

	out, err = runCLI(t, env, "meetings", "show", "m-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "Meeting:    m-cli")
	assert.Contains(t, out, "No tasks extracted")

	out, err = runCLI(t, env, "queue", "stats", "--format", "json")
	require.NoError(t, err)
	var stats struct {
		Visible int `json:"visible"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Visible)
}

func TestUploadWithoutSubmit(t *testing.T) {
	env := setupCLITestEnv(t)
	path := writeTranscript(t, env)

	out, err := runCLI(t, env, "upload", path, "--no-submit")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored ")
	assert.NotContains(t, out, "Queued meeting")

	out, err = runCLI(t, env, "meetings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No meetings")
}

func TestMeetingsRejectsUnknownStatusAndFormat(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "meetings", "list", "--status", "archived")
	require.Error(t, err)

	_, err = runCLI(t, env, "meetings", "list", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestShowUnknownMeeting(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "meetings", "show", "missing")
	require.Error(t, err)
}

func TestQueueStatsTableAndDeadLetters(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue "+env.cfg.Queue.Name)
	assert.Contains(t, out, "Dead-lettered")

	out, err = runCLI(t, env, "queue", "dead-letters")
	require.NoError(t, err)
	assert.Contains(t, out, "No dead-lettered messages")
}

func TestVoicesListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "voices", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No registered speakers")

	out, err = runCLI(t, env, "voices", "list", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestVoicesSyncWithoutSamples(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "voices", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "No voice samples")
}

func TestWorkerRequiresLLMKey(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "worker", "--drain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key")
}

func TestDoctorReportsMissingKey(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "Extraction LLM")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "FFmpeg")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "test-notify")
	require.NoError(t, err)
	assert.Contains(t, out, "Notifications disabled")
}

func TestLogsShowsTrailingMatches(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "scribed.log")
	require.NoError(t, os.WriteFile(logPath, []byte("queue one\napi two\nqueue three\n"), 0o644))

	out, err := runCLI(t, env, "logs", "-n", "1", "--match", "queue")
	require.NoError(t, err)
	assert.Equal(t, "queue three\n", out)
}

func TestDaemonStatusWhenStopped(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "daemon", "status", "-o", "json")
	require.NoError(t, err)
	var view struct {
		Running bool   `json:"running"`
		URL     string `json:"url"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.False(t, view.Running)

	out, err = runCLI(t, env, "daemon", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}
