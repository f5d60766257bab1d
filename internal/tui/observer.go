package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
)

// ChannelObserver adapts the engine's observer interfaces to a channel of
// Bubble Tea messages.
type ChannelObserver struct {
	ch chan tea.Msg
}

var (
	_ domain.SelectionObserver = (*ChannelObserver)(nil)
	_ domain.OperationObserver = (*ChannelObserver)(nil)
	_ domain.StatusObserver    = (*ChannelObserver)(nil)
)

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{ch: make(chan tea.Msg, buffer)}
}

// Messages is drained by WaitForEngineMsgCmd
func (o *ChannelObserver) Messages() <-chan tea.Msg {
	return o.ch
}

// offer drops the message if the channel is full. Used for snapshots a
// later message supersedes.
func (o *ChannelObserver) offer(msg tea.Msg) {
	select {
	case o.ch <- msg:
	default:
	}
}

func (o *ChannelObserver) OnSelectionChanged(change domain.SelectionChange) {
	o.offer(SelectionChangedMsg{Change: change})
}

func (o *ChannelObserver) OnOperationProgress(update domain.OperationUpdate) {
	o.offer(OperationProgressMsg{Update: update})
}

// OnOperationTerminal blocks: terminal results must not be dropped
func (o *ChannelObserver) OnOperationTerminal(result domain.OperationResult) {
	o.ch <- OperationTerminalMsg{Result: result}
}

func (o *ChannelObserver) OnViewRefresh() {
	o.ch <- ViewRefreshMsg{}
}

// OnStatusChanged blocks like the terminal message: a reverted toggle has no
// later message to repaint it. Only called from toggle commands, never the
// update loop.
func (o *ChannelObserver) OnStatusChanged(id domain.CompanyID, status domain.CompanyStatus) {
	o.ch <- StatusChangedMsg{ID: id, Status: status}
}

// ChooseResolution implements bulk.Prompter by raising the conflict modal
// and waiting for the user's choice.
func (o *ChannelObserver) ChooseResolution(ctx context.Context, report domain.ConflictReport) (conflict.Action, error) {
	reply := make(chan conflict.Action, 1)
	select {
	case o.ch <- ConflictPromptMsg{Report: report, Reply: reply}:
	case <-ctx.Done():
		return conflict.ActionCancel, ctx.Err()
	}

	select {
	case action := <-reply:
		return action, nil
	case <-ctx.Done():
		return conflict.ActionCancel, ctx.Err()
	}
}
