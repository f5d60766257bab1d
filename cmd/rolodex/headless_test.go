package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/store"
)

func TestProgressPrinterSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	op := domain.BulkOperation{ID: "add_x_1", Status: domain.OperationInProgress, Total: 4, Processed: 2}
	p.OnOperationProgress(domain.OperationUpdate{})
	p.OnOperationProgress(domain.OperationUpdate{Operation: op})
	p.OnOperationProgress(domain.OperationUpdate{Operation: op})
	p.OnOperationProgress(domain.OperationUpdate{Operation: op, Attempt: 1, MaxAttempts: 5})

	op.Processed, op.Status = 4, domain.OperationCompleted
	op.Errors = []string{"company 7 not found"}
	p.OnOperationTerminal(domain.OperationResult{Outcome: domain.OutcomeSucceeded, Operation: op})

	assert.Equal(t,
		"in_progress: 2/4 (50%)\n"+
			"reconnecting (attempt 1 of 5)\n"+
			"done: 4/4 processed\n"+
			"  error: company 7 not found\n",
		buf.String())
}

func TestAnswerWith(t *testing.T) {
	var buf bytes.Buffer
	prompter := answerWith(&buf, conflict.ActionMove)

	action, err := prompter.ChooseResolution(context.Background(), domain.ConflictReport{
		Conflicts: []domain.Conflict{{CompanyID: 1}},
		SafeToAdd: []domain.CompanyID{2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.ActionMove, action)
	assert.Contains(t, buf.String(), "1 conflicts, 2 safe")
}

func TestPrintHistory(t *testing.T) {
	s, err := store.NewCacheStore("", "")
	require.NoError(t, err)
	defer s.Close()

	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, s, 5))
	assert.Equal(t, "no operations recorded\n", buf.String())

	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendOperation(domain.BulkOperation{
		ID: "remove_abc_1", Kind: domain.KindRemove, Status: domain.OperationCompleted,
		Total: 3, Processed: 3, CompletedAt: &done,
	}))

	buf.Reset()
	require.NoError(t, printHistory(&buf, s, 5))
	assert.Contains(t, buf.String(), "remove")
	assert.Contains(t, buf.String(), "3/3")
	assert.Contains(t, buf.String(), "remove_abc_1")
}
