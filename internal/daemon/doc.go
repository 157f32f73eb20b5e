// Package daemon keeps a device in sync in the background.
//
// The daemon runs a full sync:
//  1. once on start
//  2. every Config.Interval
//  3. shortly after the local database changes, when there is pending work
//
// # Change detection
//
// The local SQLite file runs in WAL mode, so every committed write touches
// tasks.db-wal. The daemon watches the database directory with fsnotify,
// debounces bursts of events by Config.Debounce and then asks the store for
// its pending count (unsynced tasks plus tombstones). Only a non-zero count
// triggers a sync; the daemon's own pull writes therefore never loop.
//
// # Backoff
//
// While the remote store is unreachable the periodic interval doubles after
// each failed run, capped at Config.MaxBackoff:
//
//	interval 30s, max 5m: 30s, 1m, 2m, 4m, 5m, 5m, ...
//
// A run in which both phases succeed resets the interval. Local changes
// still trigger immediate attempts during backoff.
//
// # Usage
//
//	d, err := daemon.New(syncer, database, database.Path(), nil)
//	if err != nil {
//	    return err
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	return d.Start(ctx) // blocks until ctx is cancelled
package daemon
