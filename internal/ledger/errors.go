package ledger

import (
	"errors"
	"fmt"
)

// Code categorizes caller-visible ledger errors. Transient store contention
// never surfaces here: the retry policy absorbs it unless the budget is
// exhausted, in which case the raw store error propagates.
type Code string

const (
	// CodeNotFound indicates an id references a row that doesn't exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUpdateFailed indicates an update expected to affect exactly one
	// row affected zero: the row vanished between fetch and write.
	CodeUpdateFailed Code = "UPDATE_FAILED"

	// CodeDeleteFailed indicates a delete expected to affect rows affected
	// none.
	CodeDeleteFailed Code = "DELETE_FAILED"

	// CodeNotASale indicates a reversal was requested on a record that does
	// not represent a sale. A user-facing rejection, not a crash.
	CodeNotASale Code = "NOT_A_SALE_TRANSACTION"
)

// Error is a caller-visible ledger error with a stable code.
type Error struct {
	Code    Code
	Message string
	ID      int64 // the item or transaction id involved, when known
}

func (e *Error) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s: %s (id=%d)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a not-found ledger error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsUpdateFailed reports whether err is a lost-update ledger error.
func IsUpdateFailed(err error) bool { return hasCode(err, CodeUpdateFailed) }

// IsDeleteFailed reports whether err is a failed-delete ledger error.
func IsDeleteFailed(err error) bool { return hasCode(err, CodeDeleteFailed) }

// IsNotASale reports whether err rejects a reversal of a non-sale record.
func IsNotASale(err error) bool { return hasCode(err, CodeNotASale) }

func hasCode(err error, code Code) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

func notFound(what string, id int64) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found", ID: id}
}

func updateFailed(what string, id int64) *Error {
	return &Error{Code: CodeUpdateFailed, Message: what + " update affected no rows", ID: id}
}

func deleteFailed(what string, id int64) *Error {
	return &Error{Code: CodeDeleteFailed, Message: what + " delete affected no rows", ID: id}
}

func notASale(id int64) *Error {
	return &Error{Code: CodeNotASale, Message: "transaction is not a sale or wholesale record", ID: id}
}
