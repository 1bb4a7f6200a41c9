package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable, caller-facing error code.
type ErrorKind string

const (
	KindInvalidDate         ErrorKind = "INVALID_DATE"
	KindInvalidAmount       ErrorKind = "INVALID_AMOUNT"
	KindMissingColumns      ErrorKind = "MISSING_COLUMNS"
	KindNoValidTransactions ErrorKind = "NO_VALID_TRANSACTIONS"
	KindNoTransactionsFound ErrorKind = "NO_TRANSACTIONS_FOUND"
	KindUnsupportedFileType ErrorKind = "UNSUPPORTED_FILE_TYPE"
	KindFileTooLarge        ErrorKind = "FILE_TOO_LARGE"
	KindExternalService     ErrorKind = "EXTERNAL_SERVICE_ERROR"
	KindInvalidRequest      ErrorKind = "INVALID_REQUEST"
)

// IngestError is the error type surfaced by the ingestion core.
// Details carries the structured payload callers put in error responses,
// e.g. {"missing": ["amount"]} or {"dependency": "llm"}.
type IngestError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// Is matches any IngestError of the same kind, so the Err* values below
// work as sentinels with errors.Is.
func (e *IngestError) Is(target error) bool {
	t, ok := target.(*IngestError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidDate         = &IngestError{Kind: KindInvalidDate}
	ErrInvalidAmount       = &IngestError{Kind: KindInvalidAmount}
	ErrMissingColumns      = &IngestError{Kind: KindMissingColumns}
	ErrNoValidTransactions = &IngestError{Kind: KindNoValidTransactions}
	ErrNoTransactionsFound = &IngestError{Kind: KindNoTransactionsFound}
	ErrUnsupportedFileType = &IngestError{Kind: KindUnsupportedFileType}
	ErrFileTooLarge        = &IngestError{Kind: KindFileTooLarge}
	ErrExternalService     = &IngestError{Kind: KindExternalService}
	ErrInvalidRequest      = &IngestError{Kind: KindInvalidRequest}
)

func newError(kind ErrorKind, message string, details map[string]any) *IngestError {
	return &IngestError{Kind: kind, Message: message, Details: details}
}

// externalError marks a dependency failure (object store, LLM, transaction store).
func externalError(dependency string, err error) *IngestError {
	return &IngestError{
		Kind:    KindExternalService,
		Message: dependency + " call failed",
		Details: map[string]any{"dependency": dependency, "cause": err.Error()},
		Err:     err,
	}
}

// KindOf returns the kind of the outermost IngestError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// DetailsOf returns the details of the outermost IngestError in err's chain.
func DetailsOf(err error) map[string]any {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Details
	}
	return nil
}

// IsFileScoped reports whether err is a terminal, per-file failure that
// retrying the same input cannot fix.
func IsFileScoped(err error) bool {
	switch KindOf(err) {
	case KindMissingColumns, KindNoValidTransactions, KindUnsupportedFileType, KindFileTooLarge, KindInvalidRequest:
		return true
	case KindNoTransactionsFound:
		// Only terminal when no dependency failure is underneath.
		cause := outermost(err).Err
		return cause == nil || !errors.Is(cause, ErrExternalService)
	}
	return false
}

func outermost(err error) *IngestError {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie
	}
	return nil
}

// ExternalError marks a failed call to dependency for callers outside the
// ingestion core that share its error codes.
func ExternalError(dependency string, err error) *IngestError {
	return externalError(dependency, err)
}

// InvalidRequest reports a malformed caller request.
func InvalidRequest(message string) *IngestError {
	return newError(KindInvalidRequest, message, nil)
}
