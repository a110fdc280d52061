package models

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
)

// Operation names one of the engine's top-level operations.
type Operation string

const (
	OperationExport Operation = "export"
	OperationImport Operation = "import"
	OperationErase  Operation = "erase"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial"
	OutcomeAborted   Outcome = "aborted"
)

// RunPlaylist records what happened to one playlist during a run.
//
// For imports DestinationID is the newly created playlist. ContentHash is a
// hash of the record's name and track ids; it is informational and never used
// to skip work.
type RunPlaylist struct {
	Position      int
	SourceID      string
	DestinationID string
	Name          string
	Action        string
	Tracks        int
	ContentHash   string
	Partial       bool
}

// Run is one journaled export, import or erase.
type Run struct {
	id         string
	sequence   int
	operation  Operation
	identity   string
	outcome    Outcome
	total      int
	failed     int
	summary    string
	startedAt  time.Time
	finishedAt *time.Time
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
	playlists  []RunPlaylist
}

// NewRun starts a run of op for the account identity.
func NewRun(op Operation, identity string) *Run {
	now := time.Now().UTC()
	return &Run{
		operation: op,
		identity:  identity,
		outcome:   OutcomeRunning,
		startedAt: now,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *Run) ID() string                 { return r.id }
func (r *Run) Sequence() int              { return r.sequence }
func (r *Run) Operation() Operation       { return r.operation }
func (r *Run) Identity() string           { return r.identity }
func (r *Run) Outcome() Outcome           { return r.outcome }
func (r *Run) Total() int                 { return r.total }
func (r *Run) Failed() int                { return r.failed }
func (r *Run) Summary() string            { return r.summary }
func (r *Run) StartedAt() time.Time       { return r.startedAt }
func (r *Run) FinishedAt() *time.Time     { return r.finishedAt }
func (r *Run) CreatedAt() time.Time       { return r.createdAt }
func (r *Run) UpdatedAt() time.Time       { return r.updatedAt }
func (r *Run) DeletedAt() *time.Time      { return r.deletedAt }
func (r *Run) Playlists() []RunPlaylist   { return r.playlists }
func (r *Run) SetID(id string)            { r.id = id }
func (r *Run) SetSequence(seq int)        { r.sequence = seq }
func (r *Run) SetUpdatedAt(t time.Time)   { r.updatedAt = t }
func (r *Run) SetDeletedAt(t *time.Time)  { r.deletedAt = t }
func (r *Run) SetStartedAt(t time.Time)   { r.startedAt = t }
func (r *Run) SetCreatedAt(t time.Time)   { r.createdAt = t }
func (r *Run) SetFinishedAt(t *time.Time) { r.finishedAt = t }

// SetCounts records how many items the run touched and how many failed.
func (r *Run) SetCounts(total, failed int) {
	r.total = total
	r.failed = failed
}

// AddPlaylist appends a playlist entry, numbering it after the existing ones.
func (r *Run) AddPlaylist(p RunPlaylist) {
	p.Position = len(r.playlists) + 1
	r.playlists = append(r.playlists, p)
}

// SetPlaylists replaces the playlist entries as loaded from storage.
func (r *Run) SetPlaylists(p []RunPlaylist) { r.playlists = p }

// Finish closes the run with its outcome and human-readable summary.
func (r *Run) Finish(outcome Outcome, summary string) {
	now := time.Now().UTC()
	r.outcome = outcome
	r.summary = summary
	r.finishedAt = &now
	r.updatedAt = now
}

// Restore sets the fields that are only known when loading a run from storage.
func (r *Run) Restore(outcome Outcome, summary string) {
	r.outcome = outcome
	r.summary = summary
}

// Validate checks the run has an id, a known operation and an identity.
func (r *Run) Validate() error {
	if r.id == "" {
		return errors.Wrap(shared.ErrMissingArgument, "run id")
	}
	switch r.operation {
	case OperationExport, OperationImport, OperationErase:
	default:
		return errors.Wrapf(shared.ErrInvalidArgument, "unknown operation %q", r.operation)
	}
	if r.identity == "" {
		return errors.Wrap(shared.ErrMissingArgument, "run identity")
	}
	switch r.outcome {
	case OutcomeRunning, OutcomeSucceeded, OutcomePartial, OutcomeAborted:
	default:
		return errors.Wrapf(shared.ErrInvalidArgument, "unknown outcome %q", r.outcome)
	}
	if r.total < 0 || r.failed < 0 {
		return errors.Wrap(shared.ErrInvalidArgument, "negative run counts")
	}
	return nil
}

var _ Model = (*Run)(nil)
