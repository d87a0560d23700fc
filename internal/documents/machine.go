package documents

import "fmt"

// Edge describes one legal transition and its side effects.
type Edge struct {
	To             Status
	RequiresReason bool
	// Posts fires the ledger posting engine at this transition.
	Posts bool
	// Reverses reverses the document's original posting at this transition.
	Reverses bool
}

// transitions holds one table per document family: state -> action -> edge.
var transitions = map[Family]map[Status]map[Action]Edge{
	FamilyQuotation: {
		StatusDraft: {
			ActionSubmit: {To: StatusSubmitted},
			ActionRevise: {To: StatusSuperseded},
		},
		StatusSubmitted: {
			ActionApprove: {To: StatusApproved},
			ActionReject:  {To: StatusRejected, RequiresReason: true},
			ActionRevise:  {To: StatusSuperseded},
		},
		StatusApproved: {
			ActionConvert: {To: StatusConverted},
			ActionRevise:  {To: StatusSuperseded},
		},
	},
	FamilyInvoice: {
		StatusDraft: {
			ActionPost: {To: StatusPosted, Posts: true},
		},
		StatusPosted: {
			ActionVoid: {To: StatusVoid, RequiresReason: true, Reverses: true},
		},
	},
	FamilyBill: {
		StatusDraft: {
			ActionPost: {To: StatusPosted, Posts: true},
		},
		StatusPosted: {
			ActionVoid: {To: StatusVoid, RequiresReason: true, Reverses: true},
		},
	},
	FamilyDeliveryOrder: {
		StatusDraft: {
			ActionConfirm: {To: StatusConfirmed},
			ActionCancel:  {To: StatusCancelled},
		},
		StatusConfirmed: {
			ActionShip:   {To: StatusShipped},
			ActionCancel: {To: StatusCancelled},
		},
		StatusShipped: {
			ActionDeliver: {To: StatusDelivered},
		},
	},
	FamilySalesReturn: {
		StatusDraft: {
			ActionSubmit: {To: StatusPending},
			ActionCancel: {To: StatusCancelled},
		},
		StatusPending: {
			ActionApprove: {To: StatusApproved},
			ActionReject:  {To: StatusRejected, RequiresReason: true},
			ActionCancel:  {To: StatusCancelled},
		},
		StatusApproved: {
			ActionComplete: {To: StatusCompleted, Posts: true},
			ActionReject:   {To: StatusRejected, RequiresReason: true},
			ActionCancel:   {To: StatusCancelled},
		},
	},
	FamilyPurchaseReturn: {
		StatusDraft: {
			ActionSubmit: {To: StatusPending},
			ActionCancel: {To: StatusCancelled},
		},
		StatusPending: {
			ActionApprove: {To: StatusApproved},
			ActionReject:  {To: StatusRejected, RequiresReason: true},
			ActionCancel:  {To: StatusCancelled},
		},
		StatusApproved: {
			ActionComplete: {To: StatusCompleted, Posts: true},
			ActionReject:   {To: StatusRejected, RequiresReason: true},
			ActionCancel:   {To: StatusCancelled},
		},
	},
	FamilyDownPayment: {
		StatusDraft: {
			ActionConfirm: {To: StatusConfirmed, Posts: true},
		},
		StatusConfirmed: {
			ActionRefund: {To: StatusRefunded, Posts: true},
			ActionVoid:   {To: StatusVoid, RequiresReason: true, Reverses: true},
		},
	},
	FamilyWorkOrder: {
		StatusDraft: {
			ActionRelease: {To: StatusReleased},
			ActionCancel:  {To: StatusCancelled},
		},
		StatusReleased: {
			ActionStart:  {To: StatusInProgress},
			ActionCancel: {To: StatusCancelled},
		},
		StatusInProgress: {
			ActionComplete: {To: StatusCompleted},
		},
	},
}

// Next resolves the edge for an action from the current state. A transition
// not present in the family's table is always rejected, regardless of
// payload.
func Next(family Family, current Status, action Action) (Edge, error) {
	table, ok := transitions[family]
	if !ok {
		return Edge{}, ErrUnknownFamily
	}
	edges, ok := table[current]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s %s has no outgoing transitions", ErrIllegalTransition, family, current)
	}
	edge, ok := edges[action]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s cannot %s from %s", ErrIllegalTransition, family, action, current)
	}
	return edge, nil
}

// IsTerminal reports whether a state has no outgoing transitions for the
// family. APPLIED is terminal for the machine but a confirmed down payment
// keeps receiving applications until its available amount reaches zero.
func IsTerminal(family Family, status Status) bool {
	table, ok := transitions[family]
	if !ok {
		return true
	}
	edges, ok := table[status]
	return !ok || len(edges) == 0
}

// InitialStatus is the creation state for every family.
const InitialStatus = StatusDraft
