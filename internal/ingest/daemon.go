package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ultracontext/internal/logging"
	"github.com/fyrsmithlabs/ultracontext/internal/store"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

const defaultDebounce = 500 * time.Millisecond

// SubjectFile is the bus subject for file sync events.
const SubjectFile = "uc.ingest.file"

// FileEvent is published after a session log has been synced to the store.
type FileEvent struct {
	Path        string    `json:"path"`
	Session     string    `json:"session"`
	ContextID   string    `json:"context_id"`
	Appended    int       `json:"appended"`
	Total       int       `json:"total"`
	ParseErrors int       `json:"parse_errors,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher emits daemon events. A nil publisher disables them.
type Publisher interface {
	Publish(subject string, v any) error
}

// ContextStore is the slice of the context store the daemon writes to.
type ContextStore interface {
	Create(ctx context.Context, metadata map[string]string, msgs []transcript.Message) (*store.Snapshot, error)
	Append(ctx context.Context, id string, msgs []transcript.Message) (*store.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Config controls the ingestion daemon.
type Config struct {
	// Dirs lists the session-log directories to watch. Each directory and
	// its immediate subdirectories are scanned for *.jsonl files.
	Dirs []string

	// Debounce is how long writes to a file must settle before it is
	// re-parsed. Zero selects 500ms.
	Debounce time.Duration

	// MaxErrors bounds the parse errors retained per file. Zero selects
	// the parser default.
	MaxErrors int
}

func (c Config) debounce() time.Duration {
	if c.Debounce <= 0 {
		return defaultDebounce
	}
	return c.Debounce
}

// fileState tracks how much of a session log has been consumed. consumed
// counts messages, not lines, so skipped records never desync it.
type fileState struct {
	session   string
	contextID string
	consumed  int
}

// Daemon watches session-log directories and mirrors each log into a
// stored context. Writes are debounced per file; re-parses append only
// the unconsumed tail.
type Daemon struct {
	cfg     Config
	store   ContextStore
	pub     Publisher
	logger  *logging.Logger
	parser  *Parser
	watcher *fsnotify.Watcher
	roots   map[string]bool

	stop     chan struct{}
	stopOnce sync.Once

	// syncMu serializes syncFile so concurrent timers for the same file
	// cannot interleave store writes.
	syncMu sync.Mutex

	mu       sync.Mutex
	timers   map[string]*time.Timer
	sessions map[string]*fileState
}

// New creates a daemon over the given store. pub may be nil.
func New(cfg Config, st ContextStore, pub Publisher, logger *logging.Logger) (*Daemon, error) {
	if len(cfg.Dirs) == 0 {
		return nil, errors.New("at least one watch directory is required")
	}
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	roots := make(map[string]bool, len(cfg.Dirs))
	for _, dir := range cfg.Dirs {
		roots[filepath.Clean(dir)] = true
	}
	return &Daemon{
		cfg:      cfg,
		store:    st,
		pub:      pub,
		logger:   logger,
		parser:   NewParser(cfg.MaxErrors),
		watcher:  watcher,
		roots:    roots,
		stop:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
		sessions: make(map[string]*fileState),
	}, nil
}

// Start scans existing session logs into the store, then watches for
// changes in the background. Call Stop to release the watcher.
func (d *Daemon) Start(ctx context.Context) error {
	for _, dir := range d.cfg.Dirs {
		if err := d.watchRoot(dir); err != nil {
			return err
		}
	}
	for _, dir := range d.cfg.Dirs {
		for _, path := range sessionLogs(dir) {
			if err := d.syncFile(ctx, path); err != nil {
				d.logger.Warn("initial scan failed",
					zap.String("path", path),
					zap.Error(err))
			}
		}
	}

	go d.processEvents(ctx)

	d.logger.Info("ingest daemon started",
		zap.Strings("dirs", d.cfg.Dirs),
		zap.Duration("debounce", d.cfg.debounce()))
	return nil
}

// Stop stops the daemon and cleans up the watcher. Safe to call more
// than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		_ = d.watcher.Close()

		d.mu.Lock()
		for path, t := range d.timers {
			t.Stop()
			delete(d.timers, path)
		}
		d.mu.Unlock()
	})
}

// watchRoot registers a configured directory and its current
// subdirectories with the watcher. The directory is created when missing
// so the daemon can run before the first agent session does.
func (d *Daemon) watchRoot(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating watch dir %s: %w", dir, err)
	}
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if err := d.watcher.Add(sub); err != nil {
			d.logger.Warn("watching subdirectory failed",
				zap.String("dir", sub),
				zap.Error(err))
		}
	}
	return nil
}

func (d *Daemon) processEvents(ctx context.Context) {
	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(ev)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (d *Daemon) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// Only subdirectories of configured roots are added; anything
		// deeper is out of scope, matching the scan depth.
		if ev.Op&fsnotify.Create != 0 && d.roots[filepath.Clean(filepath.Dir(ev.Name))] {
			d.watchSubdir(ev.Name)
		}
		return
	}
	if strings.HasSuffix(ev.Name, ".jsonl") {
		d.schedule(ev.Name)
	}
}

// watchSubdir starts watching a newly created session subdirectory. Files
// already present are scheduled too, since their write events may have
// fired before the watch existed.
func (d *Daemon) watchSubdir(dir string) {
	if err := d.watcher.Add(dir); err != nil {
		d.logger.Warn("watching subdirectory failed",
			zap.String("dir", dir),
			zap.Error(err))
		return
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	for _, path := range files {
		d.schedule(path)
	}
}

// schedule arms the debounce timer for a file, replacing any pending one.
func (d *Daemon) schedule(path string) {
	select {
	case <-d.stop:
		return
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.cfg.debounce(), func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()

		if err := d.syncFile(context.Background(), path); err != nil {
			d.logger.Warn("sync failed",
				zap.String("path", path),
				zap.Error(err))
		}
	})
}

// syncFile re-parses a session log and reconciles the store with it. New
// messages are appended; a shrunken file drops and rebuilds its context.
func (d *Daemon) syncFile(ctx context.Context, path string) error {
	res, err := d.parser.ParseFile(path)
	if err != nil {
		return err
	}
	if res.ErrorCount > 0 {
		d.logger.Warn("session log has malformed lines",
			zap.String("path", path),
			zap.Int("errors", res.ErrorCount))
	}

	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	state := d.state(path)
	if state != nil && len(res.Messages) < state.consumed {
		d.logger.Warn("session log truncated, rebuilding context",
			zap.String("path", path),
			zap.String("context_id", state.contextID))
		if err := d.store.Delete(ctx, state.contextID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("dropping stale context: %w", err)
		}
		d.setState(path, nil)
		state = nil
	}

	var appended int
	switch {
	case state == nil:
		if len(res.Messages) == 0 {
			return nil
		}
		snap, err := d.store.Create(ctx, map[string]string{
			"session": res.Session,
			"source":  path,
		}, res.Messages)
		if err != nil {
			return fmt.Errorf("creating context for session %s: %w", res.Session, err)
		}
		state = &fileState{
			session:   res.Session,
			contextID: snap.Context.ID,
			consumed:  len(res.Messages),
		}
		d.setState(path, state)
		appended = len(res.Messages)
	case len(res.Messages) > state.consumed:
		tail := res.Messages[state.consumed:]
		if _, err := d.store.Append(ctx, state.contextID, tail); err != nil {
			return fmt.Errorf("appending to context %s: %w", state.contextID, err)
		}
		state.consumed = len(res.Messages)
		appended = len(tail)
	default:
		return nil
	}

	d.logger.Info("session log synced",
		zap.String("session", state.session),
		zap.String("context_id", state.contextID),
		zap.Int("appended", appended))
	d.publish(FileEvent{
		Path:        path,
		Session:     state.session,
		ContextID:   state.contextID,
		Appended:    appended,
		Total:       state.consumed,
		ParseErrors: res.ErrorCount,
		Timestamp:   time.Now().UTC(),
	})
	return nil
}

func (d *Daemon) state(path string) *fileState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[path]
}

func (d *Daemon) setState(path string, st *fileState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st == nil {
		delete(d.sessions, path)
		return
	}
	d.sessions[path] = st
}

func (d *Daemon) publish(ev FileEvent) {
	if d.pub == nil {
		return
	}
	if err := d.pub.Publish(SubjectFile, ev); err != nil {
		d.logger.Warn("publishing ingest event failed", zap.Error(err))
	}
}

// sessionLogs lists *.jsonl files in a directory and its immediate
// subdirectories.
func sessionLogs(dir string) []string {
	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	nested, _ := filepath.Glob(filepath.Join(dir, "*", "*.jsonl"))
	return append(files, nested...)
}
