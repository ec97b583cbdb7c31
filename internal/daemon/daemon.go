// Package daemon runs continuous imports: it watches the ClearCase view
// for activity and triggers an import after each quiet period, with a
// periodic poll as a fallback for filesystems where change notification
// does not work (MVFS and network mounts often do not emit events).
package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Importer is the sync operation the daemon triggers. Implemented by the
// bridge's ImportHistory wrapped with its branch and options.
type Importer func(ctx context.Context) error

// Config holds daemon configuration.
type Config struct {
	// ViewDir is the ClearCase view root to watch.
	ViewDir string

	// PollInterval triggers an import even without view activity.
	PollInterval time.Duration

	// Debounce is how long the view must stay quiet after activity
	// before importing. Batches bursty checkin sessions into one run.
	Debounce time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults, excluding ViewDir.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 5 * time.Minute,
		Debounce:     30 * time.Second,
		Logger:       log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches a view and schedules imports.
type Daemon struct {
	config   *Config
	importer Importer

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	lastSeen time.Time
	pending  bool
}

// New creates a daemon. Use Run to start it.
func New(cfg *Config, importer Importer) (*Daemon, error) {
	if cfg == nil || cfg.ViewDir == "" {
		return nil, fmt.Errorf("view directory is required")
	}
	if importer == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Daemon{config: cfg, importer: importer, watcher: watcher}, nil
}

// Run imports once, then blocks watching the view until ctx is
// cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.watcher.Close()

	if err := d.watchTree(); err != nil {
		return err
	}
	d.config.Logger.Printf("watching %s (poll %v, debounce %v)",
		d.config.ViewDir, d.config.PollInterval, d.config.Debounce)

	if err := d.runImport(ctx); err != nil {
		return fmt.Errorf("initial import failed: %w", err)
	}

	poll := time.NewTicker(d.config.PollInterval)
	defer poll.Stop()
	// The debounce tick checks whether a quiet period has elapsed.
	quiet := time.NewTicker(d.config.Debounce / 3)
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("shutting down")
			return nil

		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			d.handleEvent(event)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.config.Logger.Printf("watcher error: %v", err)

		case <-quiet.C:
			if d.quietPeriodElapsed() {
				if err := d.runImport(ctx); err != nil {
					d.config.Logger.Printf("import failed: %v", err)
				}
			}

		case <-poll.C:
			if err := d.runImport(ctx); err != nil {
				d.config.Logger.Printf("poll import failed: %v", err)
			}
		}
	}
}

// watchTree registers the view root and every subdirectory; fsnotify
// watches are not recursive.
func (d *Daemon) watchTree() error {
	return filepath.WalkDir(d.config.ViewDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && path != d.config.ViewDir {
			return filepath.SkipDir
		}
		if err := d.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (d *Daemon) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// New directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := d.watcher.Add(event.Name); err != nil {
				d.config.Logger.Printf("failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}

	d.mu.Lock()
	d.lastSeen = time.Now()
	d.pending = true
	d.mu.Unlock()
}

// quietPeriodElapsed reports whether view activity has settled long
// enough to import, and consumes the pending flag when it has.
func (d *Daemon) quietPeriodElapsed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending || time.Since(d.lastSeen) < d.config.Debounce {
		return false
	}
	d.pending = false
	return true
}

func (d *Daemon) runImport(ctx context.Context) error {
	start := time.Now()
	if err := d.importer(ctx); err != nil {
		return err
	}
	d.config.Logger.Printf("import completed in %v", time.Since(start).Round(time.Millisecond))
	return nil
}
