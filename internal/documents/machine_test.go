package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLegalEdges(t *testing.T) {
	cases := []struct {
		family Family
		from   Status
		action Action
		to     Status
		posts  bool
	}{
		{FamilyQuotation, StatusDraft, ActionSubmit, StatusSubmitted, false},
		{FamilyQuotation, StatusSubmitted, ActionApprove, StatusApproved, false},
		{FamilyQuotation, StatusApproved, ActionConvert, StatusConverted, false},
		{FamilyInvoice, StatusDraft, ActionPost, StatusPosted, true},
		{FamilyInvoice, StatusPosted, ActionVoid, StatusVoid, false},
		{FamilyBill, StatusDraft, ActionPost, StatusPosted, true},
		{FamilyDeliveryOrder, StatusConfirmed, ActionShip, StatusShipped, false},
		{FamilyDeliveryOrder, StatusShipped, ActionDeliver, StatusDelivered, false},
		{FamilySalesReturn, StatusApproved, ActionComplete, StatusCompleted, true},
		{FamilyPurchaseReturn, StatusPending, ActionApprove, StatusApproved, false},
		{FamilyDownPayment, StatusDraft, ActionConfirm, StatusConfirmed, true},
		{FamilyDownPayment, StatusConfirmed, ActionRefund, StatusRefunded, true},
		{FamilyWorkOrder, StatusReleased, ActionStart, StatusInProgress, false},
		{FamilyWorkOrder, StatusInProgress, ActionComplete, StatusCompleted, false},
	}
	for _, tc := range cases {
		edge, err := Next(tc.family, tc.from, tc.action)
		require.NoError(t, err, "%s %s %s", tc.family, tc.from, tc.action)
		assert.Equal(t, tc.to, edge.To)
		assert.Equal(t, tc.posts, edge.Posts)
	}
}

func TestNextIllegalEdges(t *testing.T) {
	cases := []struct {
		family Family
		from   Status
		action Action
	}{
		{FamilyQuotation, StatusDraft, ActionApprove},     // skip submit
		{FamilyQuotation, StatusConverted, ActionRevise},  // terminal
		{FamilyInvoice, StatusDraft, ActionVoid},          // void needs posted
		{FamilyInvoice, StatusVoid, ActionPost},           // terminal
		{FamilyBill, StatusPosted, ActionPost},            // double post
		{FamilyDeliveryOrder, StatusDraft, ActionDeliver}, // skip ship
		{FamilyDeliveryOrder, StatusDelivered, ActionCancel},
		{FamilySalesReturn, StatusDraft, ActionComplete},
		{FamilyDownPayment, StatusRefunded, ActionConfirm},
		{FamilyWorkOrder, StatusDraft, ActionStart}, // release first
		{FamilyWorkOrder, StatusCompleted, ActionCancel},
	}
	for _, tc := range cases {
		_, err := Next(tc.family, tc.from, tc.action)
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s %s %s", tc.family, tc.from, tc.action)
	}
}

func TestNextUnknownFamily(t *testing.T) {
	_, err := Next(Family("RECEIPT"), StatusDraft, ActionSubmit)
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestRequiresReason(t *testing.T) {
	edge, err := Next(FamilyInvoice, StatusPosted, ActionVoid)
	require.NoError(t, err)
	assert.True(t, edge.RequiresReason)
	assert.True(t, edge.Reverses)

	edge, err = Next(FamilySalesReturn, StatusPending, ActionReject)
	require.NoError(t, err)
	assert.True(t, edge.RequiresReason)
	assert.False(t, edge.Reverses)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(FamilyInvoice, StatusVoid))
	assert.True(t, IsTerminal(FamilyQuotation, StatusRejected))
	assert.True(t, IsTerminal(FamilyWorkOrder, StatusCompleted))
	assert.False(t, IsTerminal(FamilyInvoice, StatusDraft))
	assert.False(t, IsTerminal(FamilyDownPayment, StatusConfirmed))
}

func TestDerivePaymentState(t *testing.T) {
	due := date(2026, 6, 30)
	doc := Document{Status: StatusPosted, GrandTotal: 10000, DueDate: &due}

	assert.Equal(t, PaymentStateUnpaid, DerivePaymentState(doc, 0, date(2026, 6, 10)))
	assert.Equal(t, PaymentStatePartial, DerivePaymentState(doc, 4000, date(2026, 6, 10)))
	assert.Equal(t, PaymentStatePaid, DerivePaymentState(doc, 10000, date(2026, 6, 10)))
	assert.Equal(t, PaymentStatePaid, DerivePaymentState(doc, 10000, date(2026, 7, 10)))
	assert.Equal(t, PaymentStateOverdue, DerivePaymentState(doc, 4000, date(2026, 7, 10)))
	assert.Equal(t, PaymentStateOverdue, DerivePaymentState(doc, 0, date(2026, 7, 10)))

	draft := Document{Status: StatusDraft, GrandTotal: 10000}
	assert.Equal(t, PaymentStateUnpaid, DerivePaymentState(draft, 0, date(2026, 6, 10)))
}
