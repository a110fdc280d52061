// Package ui implements the interactive terminal views using bubbletea's Elm architecture.
//
//   - [ProgressModel] runs one export, import or erase and renders its progress
//     updates with a spinner, a progress bar and the latest warnings.
//   - [PickerModel] lists an account's playlists and turns the ticked ones into
//     a selection expression such as "1,3-4".
//
// Both models implement bubbletea's standard Init/Update/View pattern. Progress updates flow through a channel from
// the engine and arrive as the [Msg] union type, one at a time, so a slow terminal never blocks the operation.
//
// Keyboard navigation uses vim-style bindings (j/k, space, a, enter, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
