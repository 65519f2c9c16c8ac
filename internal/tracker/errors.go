package tracker

import "fmt"

// ErrorCode classifies protocol-state and input-shape violations raised by
// Tracker entry points. These abort the call that triggered them and are
// never recovered internally.
type ErrorCode string

const (
	// CodeNoTransaction: a track or build call arrived while idle.
	CodeNoTransaction ErrorCode = "NO_TRANSACTION"
	// CodeTransactionInProgress: StartTransaction on an active tracker.
	CodeTransactionInProgress ErrorCode = "TRANSACTION_IN_PROGRESS"
	// CodeMissingID: the tracked entity carries no usable id.
	CodeMissingID ErrorCode = "MISSING_ID"
)

// Error is a protocol violation with a machine-readable code.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func protocolErr(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
