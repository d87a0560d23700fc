package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-ledger/internal/fiscal"
)

// PostWithinTx validates and writes a balanced journal entry inside an
// already-open transaction. Document workflows call this so the status change
// and the entry commit atomically; Service.Post wraps it for manual postings.
//
// The covering fiscal period row is locked for the duration of the
// transaction, so a concurrent period lock/close waits or is waited on.
func PostWithinTx(ctx context.Context, tx TxRepository, in PostingInput) (JournalEntry, error) {
	if err := ValidateLines(in.Lines); err != nil {
		return JournalEntry{}, err
	}
	if in.SourceModule == "" {
		return JournalEntry{}, errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return JournalEntry{}, errors.New("ledger: source id required")
	}
	period, err := tx.PeriodCoveringForUpdate(ctx, in.Date)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := fiscal.EnsurePostable(period, in.Override); err != nil {
		return JournalEntry{}, err
	}
	entry, err := tx.InsertEntry(ctx, EntryParams{
		PeriodID:     period.ID,
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		Status:       EntryStatusPosted,
		PostedBy:     in.PostedBy,
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	if err := tx.LinkSource(ctx, in.SourceModule, in.SourceID, entry.ID); err != nil {
		if errors.Is(err, ErrSourceConflict) {
			return JournalEntry{}, ErrAlreadyPosted
		}
		return JournalEntry{}, err
	}
	entry.Lines = attachLines(entry.ID, in.Lines)
	return entry, nil
}

// ReverseWithinTx creates the reversing entry for a posted entry and marks
// the original as reversed. The original is never mutated otherwise. When the
// requested date lands in a locked or closed period and no override is held,
// the reversal moves to the first day of the next open period.
func ReverseWithinTx(ctx context.Context, tx TxRepository, in ReverseInput) (JournalEntry, error) {
	original, lines, err := tx.EntryForUpdate(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != EntryStatusPosted {
		return JournalEntry{}, ErrInvalidStatus
	}
	if original.Reversed {
		return JournalEntry{}, ErrAlreadyReversed
	}

	targetDate := in.Date
	if targetDate.IsZero() {
		targetDate = original.Date
	}
	if targetDate.Before(original.Date) {
		targetDate = original.Date
	}
	period, err := tx.PeriodCoveringForUpdate(ctx, targetDate)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := fiscal.EnsurePostable(period, in.Override); err != nil {
		next, nerr := tx.NextOpenPeriodAfter(ctx, period.EndDate.AddDate(0, 0, 1))
		if nerr != nil {
			return JournalEntry{}, err
		}
		period = next
		targetDate = next.StartDate
	}

	originalID := original.ID
	entry, err := tx.InsertEntry(ctx, EntryParams{
		PeriodID:     period.ID,
		Date:         targetDate,
		SourceModule: original.SourceModule + ":REVERSAL",
		SourceID:     uuid.New(),
		Memo:         reversalMemo(in.Reason, original.Number),
		Status:       EntryStatusPosted,
		ReversalOfID: &originalID,
		PostedBy:     in.ActorID,
	})
	if err != nil {
		return JournalEntry{}, err
	}
	reversed := ReversalLines(lines)
	if err := tx.InsertLines(ctx, entry.ID, reversed); err != nil {
		return JournalEntry{}, err
	}
	if err := tx.LinkSource(ctx, entry.SourceModule, entry.SourceID, entry.ID); err != nil {
		return JournalEntry{}, err
	}
	if err := tx.MarkReversed(ctx, original.ID); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = attachLines(entry.ID, reversed)
	return entry, nil
}

func attachLines(entryID int64, lines []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:   entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return out
}

func reversalMemo(reason string, number int64) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
