package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/tasks"
)

const (
	progressBuffer = 64
	maxWarnings    = 5
	maxBarWidth    = 60
)

// Operation runs one engine operation, reporting on progress. It must not close the channel.
type Operation func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.Report, error)

// ProgressModel runs an [Operation] and renders its progress updates.
//
// The operation runs on its own goroutine; updates flow through a buffered
// channel that the model drains one message at a time. Cancelling cancels the
// operation's context and waits for it to return its (aborted) report.
type ProgressModel struct {
	title  string
	ctx    context.Context
	cancel context.CancelFunc
	op     Operation

	updates chan tasks.ProgressUpdate
	results chan operationResult

	spinner  spinner.Model
	bar      progress.Model
	help     help.Model
	keys     keyMap
	current  tasks.ProgressUpdate
	warnings []string

	cancelling bool
	finished   bool
	report     *tasks.Report
	err        error
}

var _ tea.Model = (*ProgressModel)(nil)

// NewProgressModel prepares op to run under ctx.
func NewProgressModel(ctx context.Context, title string, op Operation) *ProgressModel {
	ctx, cancel := context.WithCancel(ctx)
	return &ProgressModel{
		title:   title,
		ctx:     ctx,
		cancel:  cancel,
		op:      op,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.phase)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the operation and the spinner.
func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

// Update handles incoming messages and updates the model state.
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.cancel) {
			if m.finished {
				return m, tea.Quit
			}
			m.cancelling = true
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		m.bar = model.(progress.Model)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			return m, tea.Batch(m.apply(msg.data.(tasks.ProgressUpdate)), m.waitForProgress())
		case MsgOperationDone:
			result := msg.data.(operationResult)
			m.report, m.err = result.report, result.err
			m.finished = true
			m.cancel()
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *ProgressModel) apply(update tasks.ProgressUpdate) tea.Cmd {
	m.current = update
	if update.Level >= log.WarnLevel {
		m.warnings = append(m.warnings, update.Message)
		if len(m.warnings) > maxWarnings {
			m.warnings = m.warnings[len(m.warnings)-maxWarnings:]
		}
	}
	if update.Total > 0 {
		return m.bar.SetPercent(float64(update.Step) / float64(update.Total))
	}
	return nil
}

func (m *ProgressModel) start() tea.Cmd {
	m.updates = make(chan tasks.ProgressUpdate, progressBuffer)
	m.results = make(chan operationResult, 1)

	go func() {
		report, err := m.op(m.ctx, m.updates)
		m.results <- operationResult{report, err}
		close(m.updates)
	}()

	return m.waitForProgress()
}

func (m *ProgressModel) waitForProgress() tea.Cmd {
	updates, results := m.updates, m.results
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			result := <-results
			return operationDoneMsg(result.report, result.err)
		}
		return progressUpdateMsg(update)
	}
}

// View renders the title, the current phase and the bar.
func (m *ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render(m.title))
	b.WriteString("\n")

	if m.finished {
		if m.err != nil {
			b.WriteString(styles.err.Render(fmt.Sprintf("✗ %v", m.err)))
		} else {
			b.WriteString(styles.ok.Render("✓ Done"))
		}
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s", m.spinner.View(), styles.phase.Render(phaseLabel(m.current.Phase)))
	if m.current.Total > 0 {
		fmt.Fprintf(&b, " (%d/%d)", m.current.Step, m.current.Total)
	}
	b.WriteString("\n")
	if m.current.Message != "" {
		b.WriteString(m.current.Message)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.bar.View())
	b.WriteString("\n")

	for _, w := range m.warnings {
		b.WriteString(styles.warn.Render("! " + w))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.cancelling {
		b.WriteString(styles.help.Render("cancelling, waiting for the current request..."))
	} else {
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.cancel}))
	}
	b.WriteString("\n")
	return b.String()
}

// Report returns the operation's report once it has finished.
func (m *ProgressModel) Report() (*tasks.Report, error) {
	return m.report, m.err
}

func phaseLabel(p tasks.Phase) string {
	switch p {
	case tasks.ListPlaylists:
		return "Listing playlists"
	case tasks.ExportPlaylist:
		return "Exporting playlists"
	case tasks.ExportLiked:
		return "Exporting liked songs"
	case tasks.CreatePlaylist:
		return "Creating playlists"
	case tasks.AddTracks:
		return "Adding tracks"
	case tasks.UploadCover:
		return "Restoring covers"
	case tasks.ImportLiked:
		return "Saving liked songs"
	case tasks.RemovePlaylist:
		return "Removing playlists"
	case tasks.CollectLiked:
		return "Collecting liked songs"
	case tasks.RemoveLiked:
		return "Removing liked songs"
	case tasks.Done:
		return "Finishing"
	default:
		return "Starting"
	}
}

// RunProgress runs op behind a [ProgressModel] and returns its report.
func RunProgress(ctx context.Context, title string, op Operation, opts ...tea.ProgramOption) (*tasks.Report, error) {
	m := NewProgressModel(ctx, title, op)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		m.cancel()
		return nil, errors.Wrap(err, "progress view failed")
	}
	return final.(*ProgressModel).Report()
}
