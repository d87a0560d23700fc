package ledger

import (
	"fmt"

	"github.com/atlas-erp/atlas-ledger/internal/money"
)

// ValidateLines enforces the double-entry invariant on a line set: at least
// two lines, every line exactly one-sided, and sum(debit) == sum(credit) to
// the minor unit. The same check gates engine postings and manual entries.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit money.Amount
	for idx, line := range lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("line %d: %w", idx, ErrNegativeAmount)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("line %d: %w", idx, ErrBothSides)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("line %d: %w", idx, ErrEmptyLine)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// ReversalLines produces the line set that inverts an existing entry. Summed
// with the original lines it nets to zero per account.
func ReversalLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}
