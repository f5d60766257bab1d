package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mmcdole/rolodex/internal/bulk"
	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
)

// progressPrinter writes one line per progress change
type progressPrinter struct {
	out io.Writer

	mu   sync.Mutex
	last string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) OnOperationProgress(u domain.OperationUpdate) {
	op := u.Operation
	var line string
	switch {
	case u.Reconnecting():
		line = fmt.Sprintf("reconnecting (attempt %d of %d)", u.Attempt, u.MaxAttempts)
	case op.ID == "":
		return
	default:
		line = fmt.Sprintf("%s: %d/%d (%.0f%%)", op.Status, op.Processed, op.Total, op.Percentage())
	}
	p.println(line)
}

func (p *progressPrinter) OnOperationTerminal(r domain.OperationResult) {
	op := r.Operation
	switch r.Outcome {
	case domain.OutcomeSucceeded:
		p.println(fmt.Sprintf("done: %d/%d processed", op.Processed, op.Total))
	case domain.OutcomeCancelled:
		p.println("cancelled")
	case domain.OutcomeDetached:
		p.println("detached; operation continues on the server")
	default:
		p.println(fmt.Sprintf("failed: %v", r.Err))
	}
	for _, e := range op.Errors {
		p.println("  error: " + e)
	}
}

func (p *progressPrinter) OnViewRefresh() {}

func (p *progressPrinter) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.out, line)
}

// answerWith answers every conflict prompt with the -on-conflict flag
func answerWith(out io.Writer, action conflict.Action) bulk.Prompter {
	return bulk.PrompterFunc(func(_ context.Context, report domain.ConflictReport) (conflict.Action, error) {
		fmt.Fprintf(out, "%d conflicts, %d safe, %d already present: %s\n",
			len(report.Conflicts), len(report.SafeToAdd), len(report.Duplicates), action)
		return action, nil
	})
}

// printHistory lists journaled operations, newest first
func printHistory(out io.Writer, journal domain.Store, limit int) error {
	ops, err := journal.RecentOperations(limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(ops) == 0 {
		fmt.Fprintln(out, "no operations recorded")
		return nil
	}
	for _, op := range ops {
		when := op.StartedAt
		if op.CompletedAt != nil {
			when = *op.CompletedAt
		}
		fmt.Fprintf(out, "%s  %-6s %-10s %d/%d  errors=%d  %s\n",
			when.Local().Format(time.DateTime), op.Kind, op.Status,
			op.Processed, op.Total, len(op.Errors), op.ID)
	}
	return nil
}
