package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-ledger/internal/ledger"
)

func testAccountMap() AccountMap {
	return AccountMap{
		Receivable:       1,
		Payable:          2,
		Revenue:          3,
		Expense:          4,
		TaxPayable:       5,
		TaxReceivable:    6,
		Cash:             7,
		CustomerAdvances: 8,
		SupplierAdvances: 9,
		SalesReturns:     10,
	}
}

func TestAccountMapValidate(t *testing.T) {
	m := testAccountMap()
	assert.NoError(t, m.Validate())

	m.TaxPayable = 0
	assert.Error(t, m.Validate())
}

func TestBuildPostingLinesInvoice(t *testing.T) {
	m := testAccountMap()
	doc := Document{
		Family:     FamilyInvoice,
		Subtotal:   25000,
		Tax:        2500,
		GrandTotal: 27500,
		Lines: []Line{
			{Net: 15000, Tax: 1500},
			{Net: 10000, Tax: 1000},
		},
	}

	lines, err := BuildPostingLines(m, doc)
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateLines(lines))

	assert.Equal(t, ledger.LineInput{AccountID: m.Receivable, Debit: 27500}, lines[0])
	assert.Equal(t, ledger.LineInput{AccountID: m.Revenue, Credit: 15000}, lines[1])
	assert.Equal(t, ledger.LineInput{AccountID: m.Revenue, Credit: 10000}, lines[2])
	assert.Equal(t, ledger.LineInput{AccountID: m.TaxPayable, Credit: 2500}, lines[3])
}

func TestBuildPostingLinesBill(t *testing.T) {
	m := testAccountMap()
	doc := Document{
		Family:     FamilyBill,
		Subtotal:   10000,
		Tax:        1000,
		GrandTotal: 11000,
		Lines:      []Line{{Net: 10000, Tax: 1000}},
	}

	lines, err := BuildPostingLines(m, doc)
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateLines(lines))

	assert.Equal(t, ledger.LineInput{AccountID: m.Expense, Debit: 10000}, lines[0])
	assert.Equal(t, ledger.LineInput{AccountID: m.TaxReceivable, Debit: 1000}, lines[1])
	assert.Equal(t, ledger.LineInput{AccountID: m.Payable, Credit: 11000}, lines[2])
}

func TestBuildPostingLinesReturns(t *testing.T) {
	m := testAccountMap()

	sr := Document{Family: FamilySalesReturn, Subtotal: 5000, Tax: 500, GrandTotal: 5500, Lines: []Line{{Net: 5000}}}
	lines, err := BuildPostingLines(m, sr)
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateLines(lines))
	assert.Equal(t, ledger.LineInput{AccountID: m.SalesReturns, Debit: 5000}, lines[0])
	assert.Equal(t, ledger.LineInput{AccountID: m.Receivable, Credit: 5500}, lines[2])

	pr := Document{Family: FamilyPurchaseReturn, Subtotal: 5000, Tax: 500, GrandTotal: 5500, Lines: []Line{{Net: 5000}}}
	lines, err = BuildPostingLines(m, pr)
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateLines(lines))
	assert.Equal(t, ledger.LineInput{AccountID: m.Payable, Debit: 5500}, lines[0])
}

func TestBuildPostingLinesDownPayment(t *testing.T) {
	m := testAccountMap()
	doc := Document{Family: FamilyDownPayment, GrandTotal: 50000}

	lines, err := BuildPostingLines(m, doc)
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateLines(lines))
	assert.Equal(t, ledger.LineInput{AccountID: m.Cash, Debit: 50000}, lines[0])
	assert.Equal(t, ledger.LineInput{AccountID: m.CustomerAdvances, Credit: 50000}, lines[1])
}

func TestBuildPostingLinesNonPostingFamily(t *testing.T) {
	_, err := BuildPostingLines(testAccountMap(), Document{Family: FamilyQuotation})
	assert.Error(t, err)

	_, err = BuildPostingLines(testAccountMap(), Document{Family: FamilyWorkOrder})
	assert.Error(t, err)
}

func TestBuildRefundLines(t *testing.T) {
	m := testAccountMap()
	lines, err := BuildRefundLines(m, 30000)
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateLines(lines))
	assert.Equal(t, ledger.LineInput{AccountID: m.CustomerAdvances, Debit: 30000}, lines[0])
	assert.Equal(t, ledger.LineInput{AccountID: m.Cash, Credit: 30000}, lines[1])

	_, err = BuildRefundLines(m, 0)
	assert.Error(t, err)
}
