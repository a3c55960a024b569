package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // scenario failed, purchase failed, store unavailable
	ExitCommandError = 2 // bad arguments, missing files, invalid fixtures or definitions
)

// Error codes reported in JSON error responses.
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeLoadFailed       = "LOAD_FAILED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeOperationFailed  = "OPERATION_FAILED"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope every command writes in json format.
// OperationID names the store operation the data belongs to, when there
// is one.
type Response struct {
	Status      string         `json:"status"`
	OperationID string         `json:"operation_id,omitempty"`
	Data        any            `json:"data,omitempty"`
	Error       *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error body of a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or a JSON Response.
// Text results are printed with their String method; diagnostics go to
// ErrWriter so they never mix with JSON on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success writes data.
func (f *OutputFormatter) Success(data any) error {
	return f.OperationResult("", data)
}

// OperationResult writes data produced by the store operation operationID.
func (f *OutputFormatter) OperationResult(operationID string, data any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", OperationID: operationID, Data: data})
	}
	if _, err := fmt.Fprintln(f.Writer, data); err != nil {
		return err
	}
	if operationID != "" {
		f.VerboseLog("operation %s", operationID)
	}
	return nil
}

// Error writes a failure. In text format details are shown only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "error: %s (%s)\n", message, code)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "  %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
