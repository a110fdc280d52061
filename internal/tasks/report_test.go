package tasks

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	boom := errors.New("boom")

	tc := []struct {
		name    string
		report  Report
		summary string
		outcome models.Outcome
	}{
		{
			name:    "clean",
			report:  Report{Items: 3},
			summary: "fully succeeded",
			outcome: models.OutcomeSucceeded,
		},
		{
			name:    "item failures",
			report:  Report{Items: 3, Failures: []Failure{{Err: boom}, {Err: boom}}},
			summary: "succeeded with 2 item failures (see report)",
			outcome: models.OutcomePartial,
		},
		{
			name:    "aborted wins over failures",
			report:  Report{Items: 3, Failures: []Failure{{Err: boom}}, Aborted: shared.ErrTokenExpired},
			summary: "aborted: access token expired: authentication failed",
			outcome: models.OutcomeAborted,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.summary, tt.report.Summary())
			assert.Equal(t, tt.outcome, tt.report.Outcome())
		})
	}

	t.Run("err", func(t *testing.T) {
		clean := &Report{}
		assert.NoError(t, clean.Err())

		partial := &Report{Operation: models.OperationErase, Items: 4, Failures: []Failure{{Err: boom}}}
		err := partial.Err()
		var pe *PartialError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "erase: 1 of 4 items failed", err.Error())
		assert.True(t, errors.Is(err, shared.ErrPartialOperation))

		aborted := &Report{Aborted: shared.ErrAuthTimeout}
		assert.Equal(t, shared.ErrAuthTimeout, aborted.Err())
	})

	t.Run("failure strings", func(t *testing.T) {
		assert.Equal(t, "add_tracks: Mix batch 2: boom", Failure{Phase: AddTracks, Playlist: "Mix", Batch: 2, Err: boom}.String())
		assert.Equal(t, "remove_playlist: pl-1: boom", Failure{Phase: RemovePlaylist, PlaylistID: "pl-1", Err: boom}.String())
		assert.Equal(t, "import_liked: liked songs batch 1: boom", Failure{Phase: ImportLiked, Batch: 1, Err: boom}.String())
	})
}

func TestPhaseString(t *testing.T) {
	for p := ListPlaylists; p <= Done; p++ {
		assert.NotEmpty(t, p.String())
	}
	assert.Empty(t, Phase(99).String())
}
