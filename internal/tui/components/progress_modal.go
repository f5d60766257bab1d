package components

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/tui/styles"
)

const progressWidth = 40

// ProgressModal shows a running bulk operation and its outcome
type ProgressModal struct {
	visible      bool
	title        string
	update       domain.OperationUpdate
	result       *domain.OperationResult
	errorPreview int

	bar     progress.Model
	spinner spinner.Model
	keys    ProgressKeyMap

	width  int
	height int
}

// NewProgressModal creates a hidden modal. errorPreview bounds the number of
// server errors listed.
func NewProgressModal(errorPreview int) ProgressModal {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SpinnerStyle

	return ProgressModal{
		errorPreview: errorPreview,
		bar:          progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressWidth)),
		spinner:      sp,
		keys:         DefaultProgressKeyMap(),
	}
}

// Show opens the modal for a new run
func (m *ProgressModal) Show(title string) tea.Cmd {
	m.visible = true
	m.title = title
	m.update = domain.OperationUpdate{}
	m.result = nil
	return m.spinner.Tick
}

// Hide dismisses the modal
func (m *ProgressModal) Hide() {
	m.visible = false
}

// IsVisible returns whether the modal is shown
func (m ProgressModal) IsVisible() bool {
	return m.visible
}

// SetSize sets the available screen size
func (m *ProgressModal) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.bar.Width = min(progressWidth, max(10, width-16))
}

// Finished returns true once a terminal result arrived
func (m ProgressModal) Finished() bool {
	return m.result != nil
}

// SetUpdate records a progress snapshot. A snapshot of a different
// operation after a result starts the next leg of a multi-step run.
func (m *ProgressModal) SetUpdate(u domain.OperationUpdate) {
	if m.result != nil {
		if u.Operation.ID == "" || u.Operation.ID == m.result.Operation.ID {
			return
		}
		m.result = nil
	}
	m.update = u
}

// SetResult records the terminal result
func (m *ProgressModal) SetResult(r domain.OperationResult) {
	m.result = &r
	m.update.Operation = r.Operation
	m.update.Attempt = 0
}

// Update advances the spinner. dismissed is true when the user closed the modal.
func (m ProgressModal) Update(msg tea.Msg) (modal ProgressModal, cmd tea.Cmd, dismissed bool) {
	if !m.visible {
		return m, nil, false
	}
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.result != nil {
			return m, nil, false
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd, false
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Dismiss) {
			m.Hide()
			return m, nil, true
		}
	}
	return m, nil, false
}

// View renders the modal
func (m ProgressModal) View() string {
	if !m.visible {
		return ""
	}

	op := m.update.Operation
	lines := []string{styles.ModalTitleStyle.Render(m.title)}

	switch {
	case m.result != nil:
		lines = append(lines, m.resultLine())
	case op.ID == "":
		lines = append(lines, m.spinner.View()+" Preparing...")
	case m.update.Reconnecting():
		lines = append(lines, styles.WarningStyle.Render(fmt.Sprintf("%s Reconnecting (attempt %d of %d)...",
			m.spinner.View(), m.update.Attempt, m.update.MaxAttempts)))
	default:
		lines = append(lines, m.spinner.View()+" "+statusLabel(op.Status))
	}

	if op.Total > 0 || m.result != nil {
		lines = append(lines, "",
			m.bar.ViewAs(op.Percentage()/100),
			styles.DimStyle.Render(fmt.Sprintf("%d / %d processed", op.Processed, op.Total)),
		)
	}

	if preview := op.ErrorPreview(m.errorPreview); len(preview) > 0 {
		lines = append(lines, "", styles.ErrorStyle.Render(fmt.Sprintf("%d errors:", len(op.Errors))))
		for _, e := range preview {
			lines = append(lines, styles.DimStyle.Render("  "+styles.Truncate(e, progressWidth+4)))
		}
		if more := len(op.Errors) - len(preview); more > 0 {
			lines = append(lines, styles.DimStyle.Render(fmt.Sprintf("  …and %d more", more)))
		}
	}

	help := "Esc: run in background"
	if m.result != nil {
		help = "Esc: close"
	}
	lines = append(lines, "", styles.DimStyle.Render(help))

	return styles.ModalStyle.Width(progressWidth + 8).Render(strings.Join(lines, "\n"))
}

func (m ProgressModal) resultLine() string {
	r := m.result
	switch r.Outcome {
	case domain.OutcomeSucceeded:
		if r.Warning != nil {
			return styles.WarningStyle.Render("Completed with errors")
		}
		return styles.SuccessStyle.Render("Completed")
	case domain.OutcomeCancelled:
		return styles.DimStyle.Render("Cancelled")
	case domain.OutcomeDetached:
		return styles.DimStyle.Render("Running in background")
	default:
		return styles.ErrorStyle.Render(failureText(r.Err))
	}
}

func statusLabel(s domain.OperationStatus) string {
	switch s {
	case domain.OperationPending:
		return "Queued..."
	case domain.OperationInProgress:
		return "Processing..."
	default:
		return string(s)
	}
}

// failureText gives each failure kind a short headline
func failureText(err error) string {
	switch {
	case err == nil:
		return "Failed"
	case errors.Is(err, domain.ErrTrackingLost):
		return "Lost connection; the operation may still be running"
	case errors.Is(err, domain.ErrConflictCheckFailed):
		return "Could not check for conflicts"
	case errors.Is(err, domain.ErrDispatchFailed):
		return "Server rejected the request"
	case errors.Is(err, domain.ErrOperationFailed):
		return "Operation failed on the server"
	case errors.Is(err, domain.ErrRoleUnresolved):
		return "Liked/Ignored collections not found"
	default:
		return "Failed: " + styles.Truncate(err.Error(), progressWidth)
	}
}
