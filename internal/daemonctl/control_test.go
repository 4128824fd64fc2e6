package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidqueue/internal/daemon"
	"vidqueue/internal/daemonctl"
	"vidqueue/internal/ipc"
	"vidqueue/internal/job"
	"vidqueue/internal/logging"
	"vidqueue/internal/testsupport"
	"vidqueue/internal/workflow"
)

type idleRunner struct{}

func (idleRunner) RunJob(context.Context, *job.Job) error { return nil }

func TestStopWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	_, err := daemonctl.StopAndTerminate(filepath.Join(dir, "absent.sock"), filepath.Join(dir, "vidqueue.pid"), time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if err := daemonctl.WaitForShutdown(filepath.Join(dir, "absent.sock"), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidqueue.pid")
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err := daemonctl.ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ReadPID(path); err == nil {
		t.Fatal("expected malformed pid to fail")
	}
	if _, err := daemonctl.ReadPID(filepath.Join(dir, "missing.pid")); err == nil {
		t.Fatal("expected missing pid file to fail")
	}
}

func TestEnsureStartedDetectsRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, idleRunner{}, logger, workflow.WithRecorder(store))
	d, err := daemon.New(cfg, store, logger, mgr, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	result, err := daemonctl.EnsureStarted(cfg.SocketPath(), "/nonexistent/vidqueue", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.PID != os.Getpid() {
		t.Fatalf("unexpected start result %+v", result)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected empty executable to fail")
	}
}
