package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/services"
)

var (
	_ list.Item = playlistItem{}
	_ tea.Model = (*PickerModel)(nil)
)

// playlistItem wraps [services.SpotifySimplePlaylist] and its 1-based position to implement [list.Item].
type playlistItem struct {
	position int
	playlist services.SpotifySimplePlaylist
	picked   bool
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string {
	mark := "[ ]"
	if i.picked {
		mark = styles.picked.Render("[x]")
	}
	return fmt.Sprintf("%s %d. %s", mark, i.position, i.playlist.Name)
}
func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d tracks", i.playlist.Tracks.Total)
	if i.playlist.Owner.DisplayName != "" {
		desc = fmt.Sprintf("%s • by %s", desc, i.playlist.Owner.DisplayName)
	}
	return desc
}

// PickerModel lets the user tick playlists and turns the picks into a selection expression.
type PickerModel struct {
	list      list.Model
	help      help.Model
	keys      keyMap
	confirmed bool
}

// NewPickerModel lists playlists in inventory order.
func NewPickerModel(title string, playlists []services.SpotifySimplePlaylist) *PickerModel {
	items := make([]list.Item, len(playlists))
	for i, p := range playlists {
		items[i] = playlistItem{position: i + 1, playlist: p}
	}

	keys := newKeyMap()
	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = title
	l.SetFilteringEnabled(false)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.toggle, keys.all, keys.enter}
	}

	return &PickerModel{list: l, help: help.New(), keys: keys}
}

func (m *PickerModel) Init() tea.Cmd { return nil }

func (m *PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.enter):
			m.confirmed = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.toggle):
			return m, m.toggle(m.list.Index())
		case key.Matches(msg, m.keys.all):
			return m, m.toggleAll()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *PickerModel) View() string {
	return m.list.View()
}

func (m *PickerModel) toggle(index int) tea.Cmd {
	items := m.list.Items()
	if index < 0 || index >= len(items) {
		return nil
	}
	item := items[index].(playlistItem)
	item.picked = !item.picked
	return m.list.SetItem(index, item)
}

// toggleAll picks every playlist unless all are already picked, in which case it clears them.
func (m *PickerModel) toggleAll() tea.Cmd {
	items := m.list.Items()
	all := len(m.Picked()) == len(items)

	cmds := make([]tea.Cmd, 0, len(items))
	for i, it := range items {
		item := it.(playlistItem)
		item.picked = !all
		cmds = append(cmds, m.list.SetItem(i, item))
	}
	return tea.Batch(cmds...)
}

// Picked returns the 1-based positions of the ticked playlists, ascending.
func (m *PickerModel) Picked() []int {
	var picked []int
	for _, it := range m.list.Items() {
		if item := it.(playlistItem); item.picked {
			picked = append(picked, item.position)
		}
	}
	return picked
}

// Expression renders the picks as a selection expression: "all" when every
// playlist is picked, otherwise comma separated numbers and ranges.
func (m *PickerModel) Expression() string {
	picked := m.Picked()
	if len(picked) > 0 && len(picked) == len(m.list.Items()) {
		return "all"
	}
	return compressRanges(picked)
}

func compressRanges(positions []int) string {
	var parts []string
	for i := 0; i < len(positions); {
		j := i
		for j+1 < len(positions) && positions[j+1] == positions[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, strconv.Itoa(positions[i])+"-"+strconv.Itoa(positions[j]))
		} else {
			parts = append(parts, strconv.Itoa(positions[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// Pick runs the picker and returns the selection expression. An empty
// expression means the user quit or confirmed without picking anything.
func Pick(title string, playlists []services.SpotifySimplePlaylist, opts ...tea.ProgramOption) (string, error) {
	m := NewPickerModel(title, playlists)
	final, err := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...).Run()
	if err != nil {
		return "", errors.Wrap(err, "playlist picker failed")
	}

	picker := final.(*PickerModel)
	if !picker.confirmed {
		return "", nil
	}
	return picker.Expression(), nil
}
