package journal

import (
	"context"
	"log/slog"

	"github.com/roach88/kongstore/internal/purchasing"
	"github.com/roach88/kongstore/internal/webapi"
)

// Recorder writes store lifecycle events and delivered notifications to a
// Journal. It implements purchasing.Observer.
//
// Write failures are logged and dropped: the journal must never interfere
// with a purchase in progress.
type Recorder struct {
	ctx     context.Context
	journal *Journal
	logger  *slog.Logger
}

// NewRecorder creates a recorder that writes to j using ctx.
func NewRecorder(ctx context.Context, j *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ctx: ctx, journal: j, logger: logger}
}

func (r *Recorder) OperationStarted(op purchasing.Operation) {
	detail := map[string]any{}
	if op.Kind == purchasing.OperationCatalogRefresh {
		ids := make([]string, len(op.Products))
		for i, p := range op.Products {
			ids[i] = p.ID
		}
		detail["products"] = ids
	}

	r.write(Entry{
		OperationID: op.ID,
		Category:    CategoryOperationStarted,
		Name:        op.Kind.String(),
		ProductID:   op.ProductID,
		Detail:      detail,
	})
}

func (r *Recorder) OperationCompleted(op purchasing.Operation, outcome purchasing.Outcome) {
	detail := map[string]any{"kind": op.Kind.String()}
	if outcome.TransactionID != "" {
		detail["transaction_id"] = outcome.TransactionID
	}
	if outcome.Reason != "" {
		detail["reason"] = outcome.Reason
	}
	if outcome.Message != "" {
		detail["message"] = outcome.Message
	}
	if outcome.Status == purchasing.OutcomeProductsRetrieved {
		detail["products"] = outcome.Products
	}

	productID := outcome.ProductID
	if productID == "" {
		productID = op.ProductID
	}

	r.write(Entry{
		OperationID: op.ID,
		Category:    CategoryOperationCompleted,
		Name:        string(outcome.Status),
		ProductID:   productID,
		Detail:      detail,
	})
}

func (r *Recorder) NotificationIgnored(kind webapi.Kind, reason string) {
	r.write(Entry{
		Category: CategoryNotificationIgnored,
		Name:     kind.String(),
		Detail:   map[string]any{"reason": reason},
	})
}

// Notification records a delivered notification. Subscribe it to every kind
// with webapi.Bus.SubscribeAll before the store so it is written first.
func (r *Recorder) Notification(n webapi.Notification) {
	detail := map[string]any{}
	switch n.Kind {
	case webapi.KindStoreItems:
		detail["items"] = len(n.StoreItems)
	case webapi.KindUserItems:
		detail["items"] = len(n.UserItems)
	case webapi.KindPurchaseSucceeded, webapi.KindPurchaseFailed:
		detail["identifiers"] = n.Identifiers
	}

	r.write(Entry{
		Category: CategoryNotification,
		Name:     n.Kind.String(),
		Detail:   detail,
	})
}

func (r *Recorder) write(e Entry) {
	if _, err := r.journal.WriteEntry(r.ctx, e); err != nil {
		r.logger.Error("journal write failed",
			"error", err,
			"category", e.Category,
			"name", e.Name,
			"operation_id", e.OperationID,
		)
	}
}
