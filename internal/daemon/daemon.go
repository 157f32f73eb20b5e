package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/sync"
)

// Syncer runs one sync pass. sync.Syncer satisfies it.
type Syncer interface {
	FullSync(ctx context.Context) *sync.Result
}

// PendingCounter reports how much work the next push would send.
// *db.DB satisfies it.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between periodic syncs
	Interval time.Duration

	// Debounce is how long the database must stay quiet after a change
	// before the pending count is checked
	Debounce time.Duration

	// MaxBackoff caps the interval while the remote is unreachable
	MaxBackoff time.Duration

	// OnResult, if set, is called after every run
	OnResult func(*sync.Result)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:   30 * time.Second,
		Debounce:   500 * time.Millisecond,
		MaxBackoff: 5 * time.Minute,
		Logger:     log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates change watching and periodic syncs.
type Daemon struct {
	syncer  Syncer
	pending PendingCounter
	dbPath  string
	config  *Config

	watcher *fsnotify.Watcher
	trigger chan struct{}

	mu       gosync.Mutex
	failures int
	runs     int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       gosync.WaitGroup
	stopOnce gosync.Once
}

// New creates a daemon for the local database at dbPath.
//
// Use Start() to begin watching and syncing.
func New(syncer Syncer, pending PendingCounter, dbPath string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if pending == nil {
		return nil, fmt.Errorf("pending counter cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.MaxBackoff < config.Interval {
		config.MaxBackoff = config.Interval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:  syncer,
		pending: pending,
		dbPath:  dbPath,
		config:  config,
		watcher: watcher,
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	dir := filepath.Dir(d.dbPath)
	if err := d.watcher.Add(dir); err != nil {
		_ = d.Stop()
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", dir)

	d.wg.Add(2)
	go d.watchLoop()
	go d.runLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// Trigger requests a sync as soon as possible. Requests made while one is
// already queued are merged.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Runs returns how many syncs have completed.
func (d *Daemon) Runs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

// runLoop performs the initial sync, then waits for the timer or a trigger.
func (d *Daemon) runLoop() {
	defer d.wg.Done()

	timer := time.NewTimer(d.runOnce())
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
		case <-d.trigger:
			timer.Stop()
		}
		if d.ctx.Err() != nil {
			return
		}
		timer.Reset(d.runOnce())
	}
}

// runOnce syncs and returns the delay until the next periodic run.
func (d *Daemon) runOnce() time.Duration {
	res := d.syncer.FullSync(d.ctx)
	if d.config.OnResult != nil {
		d.config.OnResult(res)
	}
	return d.record(res)
}

// record updates the failure streak from res and returns the next delay.
func (d *Daemon) record(res *sync.Result) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.runs++
	switch {
	case res.OK():
		d.failures = 0
	case errors.Is(res.Err(), schema.ErrRemoteUnreachable):
		d.failures++
	}

	delay := nextDelay(d.config.Interval, d.config.MaxBackoff, d.failures)
	if d.failures > 0 {
		d.config.Logger.Printf("Remote unreachable (%d in a row), next attempt in %v", d.failures, delay)
	}
	return delay
}

// watchLoop debounces database file events into pending checks.
func (d *Daemon) watchLoop() {
	defer d.wg.Done()

	var debounce <-chan time.Time
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.isDBFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce = time.After(d.config.Debounce)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)

		case <-debounce:
			debounce = nil
			d.checkPending()
		}
	}
}

// checkPending triggers a sync when the local store has work to push.
func (d *Daemon) checkPending() {
	n, err := d.pending.CountPending(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Warning: failed to count pending changes: %v", err)
		return
	}
	if n > 0 {
		d.config.Logger.Printf("%d local changes pending, syncing", n)
		d.Trigger()
	}
}

// isDBFile matches the database file and its -wal / -shm companions.
func (d *Daemon) isDBFile(name string) bool {
	base := filepath.Base(d.dbPath)
	got := filepath.Base(name)
	return got == base || strings.HasPrefix(got, base+"-")
}

// nextDelay doubles interval per consecutive failure, capped at limit.
func nextDelay(interval, limit time.Duration, failures int) time.Duration {
	delay := interval
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}
