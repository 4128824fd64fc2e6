package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidqueue/internal/config"
	"vidqueue/internal/daemon"
	"vidqueue/internal/ipc"
	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/logging"
	"vidqueue/internal/testsupport"
	"vidqueue/internal/workflow"
)

type finishingRunner struct{}

func (finishingRunner) RunJob(_ context.Context, j *job.Job) error {
	if j.IsStopped() {
		return nil
	}
	j.MarkStarted()
	j.Finish(false)
	return nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *jobstore.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, finishingRunner{}, logger, workflow.WithRecorder(store))
	d, err := daemon.New(cfg, store, logger, mgr, filepath.Join(cfg.Paths.LogDir, "vidqueue-test.log"))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop(context.Background())
	})

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		socketPath: socket,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\ntemp_dir = %q\noutput_dir = %q\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.TempDir,
		cfg.Paths.OutputDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}
