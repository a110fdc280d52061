package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// Failure is one sub-item that did not complete: a playlist fetch, a create,
// one batch of track adds or liked saves, or one removal.
type Failure struct {
	Phase      Phase
	PlaylistID string
	Playlist   string
	Batch      int // 1-based, zero when the failure is not batch scoped
	Err        error
}

func (f Failure) String() string {
	target := f.Playlist
	if target == "" {
		target = f.PlaylistID
	}
	if target == "" {
		target = "liked songs"
	}
	if f.Batch > 0 {
		return fmt.Sprintf("%s: %s batch %d: %v", f.Phase, target, f.Batch, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.Phase, target, f.Err)
}

// PlaylistResult records what an operation did to one playlist.
type PlaylistResult struct {
	SourceID      string
	DestinationID string
	Name          string
	Action        string // exported, created, deleted or unfollowed
	Tracks        int
	Partial       bool
	ContentHash   string
}

// Report is the structured outcome of an export, import or erase.
//
// Per-item failures accumulate in Failures while the operation continues;
// Aborted is set when the operation stopped early.
type Report struct {
	Operation  models.Operation
	Identity   string
	StartedAt  time.Time
	FinishedAt time.Time
	Playlists  []PlaylistResult
	Liked      int // liked songs exported, saved or removed
	Skipped    int // playlist and liked entries without a usable track id
	Items      int // sub-items attempted
	Failures   []Failure
	Aborted    error
}

func newReport(op models.Operation, identity string) *Report {
	return &Report{Operation: op, Identity: identity, StartedAt: time.Now().UTC()}
}

// Summary renders the one-line outcome shown to users.
func (r *Report) Summary() string {
	switch {
	case r.Aborted != nil:
		return fmt.Sprintf("aborted: %v", r.Aborted)
	case len(r.Failures) > 0:
		return fmt.Sprintf("succeeded with %d item failures (see report)", len(r.Failures))
	default:
		return "fully succeeded"
	}
}

// Outcome maps the report onto the journal's outcome.
func (r *Report) Outcome() models.Outcome {
	switch {
	case r.Aborted != nil:
		return models.OutcomeAborted
	case len(r.Failures) > 0:
		return models.OutcomePartial
	default:
		return models.OutcomeSucceeded
	}
}

// Err returns nil, a [*PartialError] or the error that aborted the operation.
func (r *Report) Err() error {
	if r.Aborted != nil {
		return r.Aborted
	}
	if len(r.Failures) > 0 {
		return &PartialError{Operation: r.Operation, Failed: len(r.Failures), Total: r.Items, Failures: r.Failures}
	}
	return nil
}

func (r *Report) fail(f Failure) {
	r.Failures = append(r.Failures, f)
}

func (r *Report) abort(err error) error {
	r.Aborted = err
	return err
}

func (r *Report) finish() {
	r.FinishedAt = time.Now().UTC()
}

// PartialError is returned by [Report.Err] when some sub-items failed. It unwraps to [shared.ErrPartialOperation].
type PartialError struct {
	Operation models.Operation
	Failed    int
	Total     int
	Failures  []Failure
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: %d of %d items failed", e.Operation, e.Failed, e.Total)
}

func (e *PartialError) Unwrap() error { return shared.ErrPartialOperation }
