package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Invocation describes one external tool run.
type Invocation struct {
	JobID  string
	Binary string
	Args   []string
	Dir    string
	// OnLine receives every stdout and stderr line as it is produced.
	OnLine func(line string)
}

// Result reports how a subprocess exited.
type Result struct {
	ExitCode int
	// Tail holds the last lines of combined output for diagnostics.
	Tail []string
}

// Runner spawns external tool invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// CommandRunner runs invocations with os/exec, each in its own process group.
type CommandRunner struct {
	Tracker   *ProcessTracker
	TailLines int
}

// NewCommandRunner returns a runner that registers processes with tracker.
func NewCommandRunner(tracker *ProcessTracker, tailLines int) *CommandRunner {
	if tailLines <= 0 {
		tailLines = 40
	}
	return &CommandRunner{Tracker: tracker, TailLines: tailLines}
}

// Run starts the invocation and blocks until it exits. A non-zero exit is
// reported through Result.ExitCode with a nil error; errors are reserved for
// failures to start or observe the process.
func (r *CommandRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	cmd := exec.Command(inv.Binary, inv.Args...) //nolint:gosec
	cmd.Dir = inv.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", inv.Binary, err)
	}

	pid := cmd.Process.Pid
	if r.Tracker != nil {
		r.Tracker.register(inv.JobID, pid)
		defer r.Tracker.unregister(inv.JobID, pid)
	}

	// Cancellation terminates the whole process group instead of only the
	// leader so helper processes do not linger.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			if r.Tracker != nil {
				r.Tracker.TerminatePID(pid)
			} else {
				_ = cmd.Process.Kill()
			}
		case <-stopWatch:
		}
	}()

	tail := newTailBuffer(r.TailLines)
	var mu sync.Mutex
	forward := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		tail.add(line)
		if inv.OnLine != nil {
			inv.OnLine(line)
		}
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once
	scan := func(reader io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	result := Result{Tail: tail.lines()}
	if scanErr != nil {
		return result, fmt.Errorf("scan output: %w", scanErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			if result.ExitCode < 0 {
				// Killed by signal.
				result.ExitCode = 128 + signalNumber(exitErr)
			}
			return result, nil
		}
		return result, fmt.Errorf("wait %s: %w", inv.Binary, waitErr)
	}
	return result, nil
}

func signalNumber(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return int(status.Signal())
	}
	return 1
}

type tailBuffer struct {
	max  int
	buf  []string
	next int
	full bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max, buf: make([]string, max)}
}

func (t *tailBuffer) add(line string) {
	t.buf[t.next] = line
	t.next = (t.next + 1) % t.max
	if t.next == 0 {
		t.full = true
	}
}

func (t *tailBuffer) lines() []string {
	if !t.full {
		return append([]string(nil), t.buf[:t.next]...)
	}
	out := make([]string, 0, t.max)
	out = append(out, t.buf[t.next:]...)
	return append(out, t.buf[:t.next]...)
}

// defaultKillGrace is used when a tracker is built without a grace period.
const defaultKillGrace = 5 * time.Second
