package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/tasks"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// PlaylistTable numbers an account's playlists the way selection expressions count them.
func PlaylistTable(playlists []services.SpotifySimplePlaylist) string {
	t := newTable("#", "Name", "Tracks", "Visibility", "Owner")
	for i, p := range playlists {
		owner := p.Owner.DisplayName
		if owner == "" {
			owner = p.Owner.ID
		}
		t.Row(
			strconv.Itoa(i+1),
			p.Name,
			humanize.Comma(int64(p.Tracks.Total)),
			visibility(p.IsPublic(), p.Collaborative),
			owner,
		)
	}
	return t.Render()
}

// ReportText renders the outcome of an export, import or erase.
func ReportText(r *tasks.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s for %s: %s\n", r.Operation, r.Identity, r.Summary())

	elapsed := "unfinished"
	if !r.FinishedAt.IsZero() {
		elapsed = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	}
	fmt.Fprintf(&b, "Playlists: %s, liked songs: %s, items: %s, failures: %s, took %s\n",
		humanize.Comma(int64(len(r.Playlists))),
		humanize.Comma(int64(r.Liked)),
		humanize.Comma(int64(r.Items)),
		humanize.Comma(int64(len(r.Failures))),
		elapsed,
	)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped %s entries without a track id (local files, episodes or removed tracks)\n",
			humanize.Comma(int64(r.Skipped)))
	}

	if len(r.Playlists) > 0 {
		t := newTable("Playlist", "Action", "Tracks", "Destination")
		for _, p := range r.Playlists {
			action := p.Action
			if p.Partial {
				action += " (partial)"
			}
			t.Row(p.Name, action, humanize.Comma(int64(p.Tracks)), p.DestinationID)
		}
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}

	return b.String()
}

// ErasePlanText lists what an erase would remove and the token that confirms it.
func ErasePlanText(plan *tasks.ErasePlan) string {
	var b strings.Builder

	if plan.Empty() {
		fmt.Fprintf(&b, "Nothing to erase for %s.\n", plan.Identity)
		return b.String()
	}

	fmt.Fprintf(&b, "Erasing from %s will remove:\n", plan.Identity)
	for _, p := range plan.Playlists {
		fmt.Fprintf(&b, "  - %s (%s)\n", p.Name, p.Action())
	}
	if plan.IncludeLiked {
		b.WriteString("  - every liked song\n")
	}
	fmt.Fprintf(&b, "Confirmation token: %s\n", plan.Token)
	return b.String()
}

// HistoryTable lists journaled runs with start times relative to now.
func HistoryTable(runs []*models.Run, now time.Time) string {
	t := newTable("#", "Operation", "Account", "Outcome", "Items", "Failed", "Started", "Summary")
	for _, run := range runs {
		t.Row(
			strconv.Itoa(run.Sequence()),
			string(run.Operation()),
			run.Identity(),
			string(run.Outcome()),
			humanize.Comma(int64(run.Total())),
			humanize.Comma(int64(run.Failed())),
			humanize.RelTime(run.StartedAt(), now, "ago", "from now"),
			run.Summary(),
		)
	}
	return t.Render()
}
