// Package watch re-plans missions whose request files change on disk.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"aerialplan/internal/fsutil"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
)

// DefaultDebounce coalesces the burst of writes editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// Submitter queues planning jobs.
type Submitter interface {
	Submit(job pipeline.Job) (pipeline.Job, error)
}

// Watcher submits a job for every *.plan.json file found at startup and
// again whenever one is created or modified.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	submit   Submitter
	log      *slog.Logger
	debounce time.Duration
	pending  map[string]time.Time
}

// New creates a watcher over root and its subdirectories.
func New(root string, submit Submitter, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		root:     root,
		submit:   submit,
		log:      logger,
		debounce: DefaultDebounce,
		pending:  make(map[string]time.Time),
	}, nil
}

// SetDebounce changes the quiet period before a changed file is planned.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run watches until ctx is done. Existing request files are submitted
// first.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	existing, err := fsutil.ListRequests(w.root)
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.submitFile(path)
	}
	w.log.Info("watching for plan requests", "dir", w.root, "existing", len(existing))

	tick := time.NewTicker(w.debounce / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("filesystem watcher error", "error", err)

		case now := <-tick.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			for _, path := range mustList(event.Name) {
				w.pending[path] = time.Now()
			}
			return
		}
		fallthrough
	case event.Has(fsnotify.Write):
		if fsutil.IsRequestFile(event.Name) {
			w.pending[event.Name] = time.Now()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if fsutil.IsRequestFile(event.Name) {
			delete(w.pending, event.Name)
			w.log.Debug("plan request removed", "path", event.Name)
		}
	}
}

func mustList(dir string) []string {
	files, _ := fsutil.ListRequests(dir)
	return files
}

func (w *Watcher) flush(now time.Time) {
	for path, seen := range w.pending {
		if now.Sub(seen) < w.debounce {
			continue
		}
		delete(w.pending, path)
		w.submitFile(path)
	}
}

func (w *Watcher) submitFile(path string) {
	req, err := ReadRequest(path)
	if err != nil {
		w.log.Warn("skipping unreadable plan request", "path", path, "error", err)
		return
	}
	job, err := w.submit.Submit(pipeline.Job{Source: "watch", Request: req})
	if err != nil {
		w.log.Warn("failed to queue plan request, will retry", "path", path, "error", err)
		w.pending[path] = time.Now()
		return
	}
	w.log.Info("plan request queued", "path", path, "job", job.ID, "pattern", job.Pattern())
}

// ReadRequest decodes a request file. A request without a name is named
// after its file.
func ReadRequest(path string) (planner.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return planner.Request{}, err
	}
	var req planner.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return planner.Request{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if req.Name == "" {
		base := filepath.Base(path)
		if fsutil.IsRequestFile(base) {
			req.Name = base[:len(base)-len(fsutil.RequestSuffix)]
		} else {
			req.Name = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return req, nil
}
