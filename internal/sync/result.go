package sync

import (
	"errors"
	"fmt"
	"time"
)

// Phase names a sync phase.
type Phase string

const (
	PhasePush Phase = "push"
	PhasePull Phase = "pull"
)

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Phase Phase
	// Attempted is false when push found nothing to send.
	Attempted bool
	// Count is the number of tasks sent (push) or received (pull).
	Count int
	// Updated is the number of tasks the remote accepted (push) or
	// written locally (pull).
	Updated int
	// Removed is the number of remote deletions caused by tombstones.
	Removed int
	// Tombstones is the number of tombstones sent.
	Tombstones int
	// Skipped is the number of pulled tasks ignored because of a pending
	// local deletion (pull), or pushed tasks left unsynced because they
	// changed during the call (push).
	Skipped  int
	Err      error
	Duration time.Duration
}

// OK reports whether the phase succeeded.
func (p PhaseResult) OK() bool {
	return p.Err == nil
}

func (p PhaseResult) String() string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("%s failed: %v", p.Phase, p.Err)
	case !p.Attempted:
		return fmt.Sprintf("%s: nothing to do", p.Phase)
	case p.Phase == PhasePush:
		return fmt.Sprintf("push: sent %d tasks and %d deletions, remote accepted %d and removed %d",
			p.Count, p.Tombstones, p.Updated, p.Removed)
	default:
		return fmt.Sprintf("pull: received %d tasks, wrote %d, skipped %d", p.Count, p.Updated, p.Skipped)
	}
}

// Result is the outcome of a FullSync.
type Result struct {
	Push PhaseResult
	Pull PhaseResult
	// Shared is set when the caller joined a run started by another caller.
	Shared    bool
	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether both phases succeeded.
func (r *Result) OK() bool {
	return r.Push.OK() && r.Pull.OK()
}

// Err joins the phase errors, or returns nil when both succeeded.
func (r *Result) Err() error {
	return errors.Join(r.Push.Err, r.Pull.Err)
}

func (r *Result) String() string {
	return fmt.Sprintf("%s; %s (%s)", r.Push, r.Pull, r.Duration.Round(time.Millisecond))
}
