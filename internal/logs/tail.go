package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	scanBufferInitial = 64 * 1024
	scanBufferMax     = 1024 * 1024
	pollInterval      = 250 * time.Millisecond
)

// TailOptions selects which lines Tail returns.
type TailOptions struct {
	// Offset is a byte position to read from; negative reads the last Limit lines.
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// JobID keeps only lines tagged with this job id.
	JobID string
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path according to opts. A missing file yields an
// empty result with offset zero.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	filter := jobFilter(opts.JobID)

	if opts.Offset < 0 {
		lines, offset, err := readLastLines(path, opts.Limit, filter)
		if err != nil {
			return result, err
		}
		result.Lines, result.Offset = lines, offset
		if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
			return waitForLines(ctx, path, offset, opts.Wait, filter)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// Truncated or rotated underneath us.
		offset = 0
	}
	lines, newOffset, err := readForward(path, offset, filter)
	if err != nil {
		return result, err
	}
	result.Lines, result.Offset = lines, newOffset
	if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
		return waitForLines(ctx, path, newOffset, opts.Wait, filter)
	}
	return result, nil
}

// Latest returns the most recently modified daemon log in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "vidqueue-*.log"))
	if err != nil {
		return "", fmt.Errorf("glob logs: %w", err)
	}
	type candidate struct {
		path string
		mod  time.Time
	}
	candidates := make([]candidate, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		candidates = append(candidates, candidate{path: match, mod: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no daemon logs in %s", dir)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].mod.Equal(candidates[j].mod) {
			return candidates[i].path > candidates[j].path
		}
		return candidates[i].mod.After(candidates[j].mod)
	})
	return candidates[0].path, nil
}

type lineFilter func(string) bool

// jobFilter matches both the text ("job_id=ID") and JSON ("job_id":"ID")
// renderings of the job id attribute.
func jobFilter(id string) lineFilter {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	text := "job_id=" + id
	json := `"job_id":"` + id + `"`
	return func(line string) bool {
		return strings.Contains(line, text) || strings.Contains(line, json)
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferInitial), scanBufferMax)
	return scanner
}

func readLastLines(path string, limit int, filter lineFilter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	scanner := newScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if filter != nil && !filter(line) {
			continue
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := range lines {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, end, nil
}

// readForward returns complete lines after offset. A trailing partial line is
// left unread so the next call picks it up whole.
func readForward(path string, offset int64, filter lineFilter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, scanBufferInitial)
	var lines []string
	pos := offset
	for {
		chunk, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(chunk))
		line := strings.TrimRight(chunk, "\r\n")
		if filter != nil && !filter(line) {
			continue
		}
		lines = append(lines, line)
	}
	return lines, pos, nil
}

// waitForLines blocks until complete lines appear after offset, wait
// elapses, or ctx is cancelled. File events wake it early; the poll ticker
// covers filesystems without inotify support.
func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, filter lineFilter) (TailResult, error) {
	result := TailResult{Offset: offset}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(path); err == nil {
			events = watcher.Events
		}
	}

	for {
		lines, newOffset, err := readForward(path, result.Offset, filter)
		if err != nil {
			return result, err
		}
		result.Offset = newOffset
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-timer.C:
			return result, nil
		case <-events:
		case <-ticker.C:
		}
	}
}
