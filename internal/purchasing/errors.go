package purchasing

import (
	"errors"
	"fmt"

	"github.com/roach88/kongstore/internal/webapi"
)

// ErrorCode categorizes store errors returned to developers.
type ErrorCode string

const (
	// ErrCodeOperationPending indicates an operation was started while
	// another was pending.
	ErrCodeOperationPending ErrorCode = "OPERATION_PENDING"

	// ErrCodeNotInitialized indicates an operation was started before
	// Initialize.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// ErrCodeAPIUninitialized indicates Configure ran before the web API
	// was initialized.
	ErrCodeAPIUninitialized ErrorCode = "API_UNINITIALIZED"
)

var (
	// ErrOperationPending matches any *PreconditionError with errors.Is.
	ErrOperationPending = errors.New("operation already pending")

	// ErrNotInitialized is returned when Initialize has not been called.
	ErrNotInitialized = errors.New("store not initialized")
)

// PreconditionError reports an attempt to start an operation while another
// is pending. It is a programming error in the caller, not a runtime
// condition to retry.
type PreconditionError struct {
	Code      ErrorCode
	Attempted OperationKind
	Pending   Operation

	// Reason is ExistingPurchasePending when a purchase was attempted
	// during another purchase, and empty otherwise.
	Reason PurchaseFailureReason
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: cannot start %s while %s is pending", e.Code, e.Attempted, e.Pending)
}

// Is makes errors.Is(err, ErrOperationPending) true.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrOperationPending
}

func newPreconditionError(attempted OperationKind, pending Operation) *PreconditionError {
	e := &PreconditionError{
		Code:      ErrCodeOperationPending,
		Attempted: attempted,
		Pending:   pending,
	}
	if attempted == OperationPurchase && pending.Kind == OperationPurchase {
		e.Reason = ExistingPurchasePending
	}
	return e
}

// IsPreconditionError reports whether err is or wraps a *PreconditionError.
func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// ConfigureError reports that the store cannot be registered.
type ConfigureError struct {
	Code   ErrorCode
	Status webapi.Status
}

func (e *ConfigureError) Error() string {
	return fmt.Sprintf("%s: web API must be initialized before registering the %s store (status %s)",
		e.Code, StoreName, e.Status)
}
