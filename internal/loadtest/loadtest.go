// Package loadtest simulates many devices editing and syncing against one
// remote API at the same time.
//
// Each simulated device owns its own local SQLite database and Synchronizer.
// Devices interleave random edits with FullSync calls; afterwards every
// device runs a final sync and the run checks that all devices converged on
// the remote list. Pull never deletes locally, so a device may keep tasks
// the remote has since removed; those are counted as Stale, not as
// divergence.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"sort"
	gosync "sync"
	"time"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/sync"
)

// Options configures a run.
type Options struct {
	// Devices is the number of simulated devices.
	Devices int

	// Rounds is how many edit-then-sync rounds each device performs.
	Rounds int

	// EditsPerRound is how many local edits precede each sync.
	EditsPerRound int

	// Dir holds the device databases.
	Dir string

	// RemoteURL is the API every device syncs against.
	RemoteURL string

	// Timeout bounds each remote call.
	Timeout time.Duration

	// Seed makes the edit sequence reproducible.
	Seed int64
}

// LatencyStats captures FullSync latency across all devices.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration // Median
	P95       time.Duration
	P99       time.Duration
	TotalSync int
	Errors    int
	Durations []time.Duration
}

// Report is the outcome of a run.
type Report struct {
	Stats *LatencyStats

	// RemoteTasks is the size of the remote list after the final sync.
	RemoteTasks int

	// Diverged lists devices missing a remote task or holding a different
	// version of one.
	Diverged []string

	// Stale counts local tasks, across devices, that the remote no longer has.
	Stale int

	Elapsed time.Duration
}

// Converged reports whether every device holds every remote task as stored
// remotely.
func (r *Report) Converged() bool {
	return len(r.Diverged) == 0
}

// device is one simulated client.
type device struct {
	name   string
	db     *db.DB
	syncer sync.Syncer
	rng    *rand.Rand
}

// Run executes the load test.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Devices <= 0 || opts.Rounds <= 0 {
		return nil, fmt.Errorf("devices and rounds must be positive")
	}
	if opts.EditsPerRound <= 0 {
		opts.EditsPerRound = 1
	}

	quiet := log.New(io.Discard, "", 0)
	devices := make([]*device, 0, opts.Devices)
	defer func() {
		for _, d := range devices {
			_ = d.db.Close()
		}
	}()

	for i := 0; i < opts.Devices; i++ {
		name := fmt.Sprintf("device-%03d", i)
		database, err := db.Open(filepath.Join(opts.Dir, name+".db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		if err := database.InitSchemaContext(ctx); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
		}
		client := remote.NewClient(opts.RemoteURL, nil)
		devices = append(devices, &device{
			name:   name,
			db:     database,
			syncer: sync.New(database, client, &sync.Config{Timeout: opts.Timeout, Logger: quiet}),
			rng:    rand.New(rand.NewSource(opts.Seed + int64(i))),
		})
	}

	start := time.Now()

	var wg gosync.WaitGroup
	var mu gosync.Mutex
	var all []time.Duration
	var errorCount int

	for _, d := range devices {
		wg.Add(1)
		go func(d *device) {
			defer wg.Done()

			durations := make([]time.Duration, 0, opts.Rounds)
			failures := 0
			for round := 0; round < opts.Rounds && ctx.Err() == nil; round++ {
				for e := 0; e < opts.EditsPerRound; e++ {
					if err := d.edit(ctx); err != nil {
						failures++
					}
				}
				res := d.syncer.FullSync(ctx)
				durations = append(durations, res.Duration)
				if !res.OK() {
					failures++
				}
			}

			mu.Lock()
			all = append(all, durations...)
			errorCount += failures
			mu.Unlock()
		}(d)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Settle: two passes so every device pulls what the others pushed last.
	for pass := 0; pass < 2; pass++ {
		for _, d := range devices {
			if res := d.syncer.FullSync(ctx); !res.OK() {
				return nil, fmt.Errorf("final sync of %s failed: %w", d.name, res.Err())
			}
		}
	}

	report := &Report{
		Stats:   computeLatencyStats(all),
		Elapsed: time.Since(start),
	}
	report.Stats.Errors = errorCount

	remoteTasks, err := remote.NewClient(opts.RemoteURL, nil).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote tasks: %w", err)
	}
	report.RemoteTasks = len(remoteTasks)

	for _, d := range devices {
		local, err := d.db.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", d.name, err)
		}
		missing, stale := compare(remoteTasks, local)
		if missing > 0 {
			report.Diverged = append(report.Diverged, d.name)
		}
		report.Stale += stale
	}

	return report, nil
}

// edit applies one random local mutation: create, update, complete or delete.
func (d *device) edit(ctx context.Context) error {
	tasks, err := d.db.ListAll(ctx)
	if err != nil {
		return err
	}

	op := d.rng.Intn(10)
	if len(tasks) == 0 || op < 4 {
		_, err := d.db.CreateTask(ctx, fmt.Sprintf("%s task %d", d.name, d.rng.Intn(1_000_000)), "")
		return err
	}

	target := tasks[d.rng.Intn(len(tasks))]
	switch {
	case op < 7:
		title := fmt.Sprintf("%s edit %d", target.Title, d.rng.Intn(100))
		if len(title) > schema.MaxTitleLength {
			title = title[:schema.MaxTitleLength]
		}
		_, err = d.db.UpdateTask(ctx, target.ID, schema.Patch{Title: &title})
	case op < 9:
		completed := !target.IsCompleted
		_, err = d.db.UpdateTask(ctx, target.ID, schema.Patch{IsCompleted: &completed})
	default:
		_, err = d.db.DeleteTask(ctx, target.ID)
	}
	return err
}

// compare counts remote tasks the local list lacks or holds in another
// version, and local tasks absent remotely.
func compare(remoteTasks, local []*schema.Task) (missing, stale int) {
	byID := make(map[string]*schema.Task, len(local))
	for _, t := range local {
		byID[t.ID] = t
	}
	for _, r := range remoteTasks {
		l, ok := byID[r.ID]
		if !ok || !sameContent(l, r) {
			missing++
		}
		delete(byID, r.ID)
	}
	return missing, len(byID)
}

func sameContent(a, b *schema.Task) bool {
	return a.Title == b.Title && a.Description == b.Description &&
		a.IsCompleted == b.IsCompleted && a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.IsSynced == b.IsSynced
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(durations)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		TotalSync: len(durations),
		Durations: sorted,
	}
}

// PrintStats formats latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Sync Latency:\n")
	fmt.Fprintf(w, "  Total Syncs:   %d\n", s.TotalSync)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
