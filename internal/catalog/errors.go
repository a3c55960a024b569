package catalog

import (
	"errors"
	"fmt"
)

// EntryErrorCode categorizes malformed catalog input.
type EntryErrorCode string

const (
	// ErrCodeMalformedEntry indicates a field value the merge cannot use.
	ErrCodeMalformedEntry EntryErrorCode = "MALFORMED_ENTRY"

	// ErrCodeDuplicateID indicates two store items share an identifier.
	ErrCodeDuplicateID EntryErrorCode = "DUPLICATE_ID"
)

// MalformedEntryError reports an input entry that prevents building a
// description. Any such error abandons the whole merge.
type MalformedEntryError struct {
	Code EntryErrorCode

	// Batch is "store", "user" or "request".
	Batch string

	// Index is the position of the entry within its batch.
	Index int

	Identifier string
	Message    string
}

func (e *MalformedEntryError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s[%d] %q: %s", e.Code, e.Batch, e.Index, e.Identifier, e.Message)
	}
	return fmt.Sprintf("%s: %s[%d]: %s", e.Code, e.Batch, e.Index, e.Message)
}

// IsMalformedEntry reports whether err is or wraps a MalformedEntryError.
func IsMalformedEntry(err error) bool {
	var me *MalformedEntryError
	return errors.As(err, &me)
}
