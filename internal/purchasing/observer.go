package purchasing

import "github.com/roach88/kongstore/internal/webapi"

// OutcomeStatus names a terminal result.
type OutcomeStatus string

const (
	OutcomeProductsRetrieved OutcomeStatus = "products_retrieved"
	OutcomeSetupFailed       OutcomeStatus = "setup_failed"
	OutcomePurchaseSucceeded OutcomeStatus = "purchase_succeeded"
	OutcomePurchaseFailed    OutcomeStatus = "purchase_failed"
)

// Outcome summarizes how an operation ended.
type Outcome struct {
	Status        OutcomeStatus
	ProductID     string
	TransactionID string
	Products      int
	Reason        string
	Message       string
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeProductsRetrieved || o.Status == OutcomePurchaseSucceeded
}

// Observer watches the store's operation lifecycle. Implementations must
// not call back into the store.
type Observer interface {
	OperationStarted(op Operation)
	OperationCompleted(op Operation, outcome Outcome)
	NotificationIgnored(kind webapi.Kind, reason string)
}

// MultiObserver fans lifecycle events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OperationStarted(op Operation) {
	for _, o := range m {
		o.OperationStarted(op)
	}
}

func (m MultiObserver) OperationCompleted(op Operation, outcome Outcome) {
	for _, o := range m {
		o.OperationCompleted(op, outcome)
	}
}

func (m MultiObserver) NotificationIgnored(kind webapi.Kind, reason string) {
	for _, o := range m {
		o.NotificationIgnored(kind, reason)
	}
}

type nopObserver struct{}

func (nopObserver) OperationStarted(Operation)              {}
func (nopObserver) OperationCompleted(Operation, Outcome)   {}
func (nopObserver) NotificationIgnored(webapi.Kind, string) {}
