package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vidqueue/internal/job"
	"vidqueue/internal/logging"
)

// ErrNotWatched reports an operation on a folder that was never registered.
var ErrNotWatched = errors.New("folder is not watched")

// Options configures the scheduler.
type Options struct {
	SettleDelay     time.Duration
	Extensions      []string
	ProcessExisting bool
}

// Scheduler tracks new files per watched folder.
type Scheduler struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	folders map[string]*folder

	closeOnce sync.Once
	done      chan struct{}
}

type folder struct {
	ready   []string
	queued  map[string]struct{}
	pending map[string]*pendingFile
}

type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a scheduler backed by an fsnotify watcher.
func New(logger *slog.Logger, opts Options) (*Scheduler, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Scheduler{
		logger:  logging.NewComponentLogger(logger, "watch"),
		opts:    opts,
		watcher: w,
		folders: make(map[string]*folder),
		done:    make(chan struct{}),
	}, nil
}

// Start processes filesystem events until ctx is cancelled or Close is called.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logging.WarnWithContext(s.logger, "watch event queue overflowed", "watch_overflow",
					logging.Error(err),
					logging.String(logging.FieldImpact, "files created during the overflow may be missed"),
					logging.String(logging.FieldErrorHint, "raise fs.inotify.max_queued_events or re-add the folder"),
				)
				continue
			}
			logging.WarnWithContext(s.logger, "watch error", "watch_error", logging.Error(err))
		}
	}
}

// Close stops the watcher and cancels pending settle timers.
func (s *Scheduler) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		for _, f := range s.folders {
			f.stopTimers()
		}
		s.mu.Unlock()
		err = s.watcher.Close()
	})
	return err
}

// AddFolderPath registers a folder. When ProcessExisting is set, files
// already present are queued immediately in name order.
func (s *Scheduler) AddFolderPath(path string) error {
	dir, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch folder %s: not a directory", dir)
	}

	s.mu.Lock()
	if _, exists := s.folders[dir]; exists {
		s.mu.Unlock()
		return nil
	}
	f := &folder{queued: make(map[string]struct{}), pending: make(map[string]*pendingFile)}
	s.folders[dir] = f
	s.mu.Unlock()

	if err := s.watcher.Add(dir); err != nil {
		s.mu.Lock()
		delete(s.folders, dir)
		s.mu.Unlock()
		return fmt.Errorf("watch folder %s: %w", dir, err)
	}

	if s.opts.ProcessExisting {
		existing, err := job.ScanDirectory(dir, s.opts.Extensions)
		if err != nil {
			return fmt.Errorf("scan watch folder %s: %w", dir, err)
		}
		s.mu.Lock()
		for _, file := range existing {
			f.enqueue(file)
		}
		s.mu.Unlock()
	}
	s.logger.Info("watching folder",
		logging.String("path", dir),
		logging.String(logging.FieldEventType, "watch_folder_added"),
	)
	return nil
}

// RemoveFolderPath stops watching a folder and discards its queued files.
func (s *Scheduler) RemoveFolderPath(path string) {
	dir, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return
	}
	s.mu.Lock()
	f, ok := s.folders[dir]
	delete(s.folders, dir)
	s.mu.Unlock()
	if !ok {
		return
	}
	f.stopTimers()
	_ = s.watcher.Remove(dir)
}

// IsInstanceEmpty reports whether the folder has no settled file waiting.
// Unknown folders are reported empty.
func (s *Scheduler) IsInstanceEmpty(path string) bool {
	dir, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[dir]
	return !ok || len(f.ready) == 0
}

// InstanceNewFile pops the oldest settled file for the folder. Files that
// vanished since they settled are skipped.
func (s *Scheduler) InstanceNewFile(path string) (string, bool) {
	dir, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[dir]
	if !ok {
		return "", false
	}
	for len(f.ready) > 0 {
		next := f.ready[0]
		f.ready = f.ready[1:]
		delete(f.queued, next)
		if _, err := os.Stat(next); err == nil {
			return next, true
		}
	}
	return "", false
}

// Pending returns how many files are queued or settling for the folder.
func (s *Scheduler) Pending(path string) int {
	dir, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.folders[dir]; ok {
		return len(f.ready) + len(f.pending)
	}
	return 0
}

func (s *Scheduler) handleEvent(event fsnotify.Event) {
	path := event.Name
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !job.MatchesExtension(base, s.opts.Extensions) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[dir]
	if !ok {
		return
	}
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		f.forget(path)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		s.startSettling(dir, f, path)
	}
}

// startSettling arms or re-arms the settle timer for path. Caller holds s.mu.
func (s *Scheduler) startSettling(dir string, f *folder, path string) {
	if _, queued := f.queued[path]; queued {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if p, exists := f.pending[path]; exists {
		p.timer.Stop()
	}
	p := &pendingFile{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(s.opts.SettleDelay, func() { s.checkSettled(dir, path) })
	f.pending[path] = p
}

func (s *Scheduler) checkSettled(dir, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[dir]
	if !ok {
		return
	}
	p, ok := f.pending[path]
	if !ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		delete(f.pending, path)
		return
	}
	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(s.opts.SettleDelay, func() { s.checkSettled(dir, path) })
		return
	}
	delete(f.pending, path)
	f.enqueue(path)
	s.logger.Debug("file settled",
		logging.String("path", path),
		logging.String(logging.FieldEventType, "watch_file_settled"),
	)
}

func (f *folder) enqueue(path string) {
	if _, ok := f.queued[path]; ok {
		return
	}
	f.queued[path] = struct{}{}
	f.ready = append(f.ready, path)
}

func (f *folder) forget(path string) {
	if p, ok := f.pending[path]; ok {
		p.timer.Stop()
		delete(f.pending, path)
	}
	if _, ok := f.queued[path]; !ok {
		return
	}
	delete(f.queued, path)
	for i, candidate := range f.ready {
		if candidate == path {
			f.ready = append(f.ready[:i], f.ready[i+1:]...)
			break
		}
	}
}

func (f *folder) stopTimers() {
	for path, p := range f.pending {
		p.timer.Stop()
		delete(f.pending, path)
	}
}
