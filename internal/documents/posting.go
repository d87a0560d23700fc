package documents

import (
	"fmt"

	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/internal/money"
)

// AccountMap is the deterministic account mapping used by posting-equivalent
// transitions. It is resolved once at startup from configured account codes
// and passed to the service at construction, never looked up globally.
type AccountMap struct {
	Receivable       int64
	Payable          int64
	Revenue          int64
	Expense          int64
	TaxPayable       int64
	TaxReceivable    int64
	Cash             int64
	CustomerAdvances int64
	SupplierAdvances int64
	SalesReturns     int64
}

// Validate rejects a map with unset accounts.
func (m AccountMap) Validate() error {
	named := map[string]int64{
		"receivable":        m.Receivable,
		"payable":           m.Payable,
		"revenue":           m.Revenue,
		"expense":           m.Expense,
		"tax_payable":       m.TaxPayable,
		"tax_receivable":    m.TaxReceivable,
		"cash":              m.Cash,
		"customer_advances": m.CustomerAdvances,
		"supplier_advances": m.SupplierAdvances,
		"sales_returns":     m.SalesReturns,
	}
	for name, id := range named {
		if id == 0 {
			return fmt.Errorf("documents: account map missing %s account", name)
		}
	}
	return nil
}

// BuildPostingLines maps a finalized document to its balanced journal lines.
// The lines balance by construction: header totals are sums of the same
// rounded line amounts credited or debited here.
func BuildPostingLines(m AccountMap, doc Document) ([]ledger.LineInput, error) {
	switch doc.Family {
	case FamilyInvoice:
		lines := []ledger.LineInput{{AccountID: m.Receivable, Debit: doc.GrandTotal}}
		for _, line := range doc.Lines {
			if line.Net == 0 {
				continue
			}
			lines = append(lines, ledger.LineInput{AccountID: m.Revenue, Credit: line.Net})
		}
		if doc.Tax > 0 {
			lines = append(lines, ledger.LineInput{AccountID: m.TaxPayable, Credit: doc.Tax})
		}
		return lines, nil

	case FamilyBill:
		lines := make([]ledger.LineInput, 0, len(doc.Lines)+2)
		for _, line := range doc.Lines {
			if line.Net == 0 {
				continue
			}
			lines = append(lines, ledger.LineInput{AccountID: m.Expense, Debit: line.Net})
		}
		if doc.Tax > 0 {
			lines = append(lines, ledger.LineInput{AccountID: m.TaxReceivable, Debit: doc.Tax})
		}
		lines = append(lines, ledger.LineInput{AccountID: m.Payable, Credit: doc.GrandTotal})
		return lines, nil

	case FamilySalesReturn:
		lines := make([]ledger.LineInput, 0, len(doc.Lines)+2)
		for _, line := range doc.Lines {
			if line.Net == 0 {
				continue
			}
			lines = append(lines, ledger.LineInput{AccountID: m.SalesReturns, Debit: line.Net})
		}
		if doc.Tax > 0 {
			lines = append(lines, ledger.LineInput{AccountID: m.TaxPayable, Debit: doc.Tax})
		}
		lines = append(lines, ledger.LineInput{AccountID: m.Receivable, Credit: doc.GrandTotal})
		return lines, nil

	case FamilyPurchaseReturn:
		lines := []ledger.LineInput{{AccountID: m.Payable, Debit: doc.GrandTotal}}
		for _, line := range doc.Lines {
			if line.Net == 0 {
				continue
			}
			lines = append(lines, ledger.LineInput{AccountID: m.Expense, Credit: line.Net})
		}
		if doc.Tax > 0 {
			lines = append(lines, ledger.LineInput{AccountID: m.TaxReceivable, Credit: doc.Tax})
		}
		return lines, nil

	case FamilyDownPayment:
		return []ledger.LineInput{
			{AccountID: m.Cash, Debit: doc.GrandTotal},
			{AccountID: m.CustomerAdvances, Credit: doc.GrandTotal},
		}, nil

	default:
		return nil, fmt.Errorf("documents: family %s does not post to the ledger", doc.Family)
	}
}

// BuildRefundLines returns money held as customer advances back to cash.
// Only the unapplied remainder of a down payment is refundable.
func BuildRefundLines(m AccountMap, remaining money.Amount) ([]ledger.LineInput, error) {
	if remaining <= 0 {
		return nil, fmt.Errorf("documents: nothing left to refund")
	}
	return []ledger.LineInput{
		{AccountID: m.CustomerAdvances, Debit: remaining},
		{AccountID: m.Cash, Credit: remaining},
	}, nil
}
