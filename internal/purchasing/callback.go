package purchasing

import "github.com/roach88/kongstore/internal/catalog"

// InitializationFailureReason explains why a catalog refresh failed.
type InitializationFailureReason string

const (
	NoProductsAvailable InitializationFailureReason = "no_products_available"
)

// PurchaseFailureReason explains why a purchase failed.
type PurchaseFailureReason string

const (
	UserCancelled PurchaseFailureReason = "user_cancelled"
	Unknown       PurchaseFailureReason = "unknown"

	// ExistingPurchasePending is never delivered through Callback. It is
	// the Reason of a *PreconditionError for a purchase started while
	// another purchase is pending.
	ExistingPurchasePending PurchaseFailureReason = "existing_purchase_pending"
)

// PurchaseFailure describes a failed purchase.
type PurchaseFailure struct {
	ProductID string                `json:"product_id"`
	Reason    PurchaseFailureReason `json:"reason"`
	Message   string                `json:"message"`
}

// Callback receives the terminal results of store operations.
// All external-facing failures arrive here; the store never panics or
// returns an error for them.
type Callback interface {
	OnProductsRetrieved(products []catalog.ProductDescription)
	OnSetupFailed(reason InitializationFailureReason)
	OnPurchaseSucceeded(productID, receipt, transactionID string)
	OnPurchaseFailed(failure PurchaseFailure)
}
