package tasks

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase     // Operation phase
	Step    int       // Current step number within phase
	Total   int       // Total steps in this phase
	Message string    // Human-readable message for display
	Level   log.Level // Severity; warnings and errors describe item failures
	Data    any       // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ListPlaylists Phase = iota
	ExportPlaylist
	ExportLiked
	CreatePlaylist
	AddTracks
	UploadCover
	ImportLiked
	RemovePlaylist
	CollectLiked
	RemoveLiked
	Done
)

func (p Phase) String() string {
	switch p {
	case ListPlaylists:
		return "list_playlists"
	case ExportPlaylist:
		return "export_playlist"
	case ExportLiked:
		return "export_liked"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case UploadCover:
		return "upload_cover"
	case ImportLiked:
		return "import_liked"
	case RemovePlaylist:
		return "remove_playlist"
	case CollectLiked:
		return "collect_liked"
	case RemoveLiked:
		return "remove_liked"
	case Done:
		return "done"
	default:
		return ""
	}
}

func listingUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListPlaylists,
		Step:    0,
		Total:   1,
		Message: "Listing playlists...",
		Level:   log.InfoLevel,
	}
}

func listedUpdate(selected, available int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Selected %d of %d playlists", selected, available),
		Level:   log.InfoLevel,
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
		Level:   log.InfoLevel,
	}
}

func exportedPlaylistUpdate(step, total int, name string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, name, tracks),
		Level:   log.InfoLevel,
	}
}

func exportLikedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLiked,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ Liked songs (%d tracks)", count),
		Level:   log.InfoLevel,
	}
}

func creatingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Creating: %s...", step, total, name),
		Level:   log.InfoLevel,
	}
}

func addTracksUpdate(batch, batches int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("%s: batch %d/%d", name, batch, batches),
		Level:   log.DebugLevel,
	}
}

func importedPlaylistUpdate(step, total int, result PlaylistResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks, ID: %s)", step, total, result.Name, result.Tracks, result.DestinationID),
		Level:   log.InfoLevel,
		Data:    result,
	}
}

func coverWarningUpdate(name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadCover,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("cover for %s not restored: %v", name, err),
		Level:   log.WarnLevel,
	}
}

func likedBatchUpdate(phase Phase, batch, batches, done int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Liked songs: batch %d/%d (%d tracks)", batch, batches, done),
		Level:   log.InfoLevel,
	}
}

func collectedLikedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CollectLiked,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Collected %d liked songs", count),
		Level:   log.InfoLevel,
	}
}

func removedPlaylistUpdate(step, total int, result PlaylistResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RemovePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s %s", step, total, result.Action, result.Name),
		Level:   log.InfoLevel,
		Data:    result,
	}
}

func failureUpdate(phase Phase, step, total int, f Failure) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("✗ %s", f),
		Level:   log.ErrorLevel,
		Data:    f,
	}
}

func doneUpdate(r *Report) ProgressUpdate {
	level := log.InfoLevel
	if r.Aborted != nil || len(r.Failures) > 0 {
		level = log.WarnLevel
	}
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s %s", r.Operation, r.Summary()),
		Level:   level,
		Data:    r,
	}
}
