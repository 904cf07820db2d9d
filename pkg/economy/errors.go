package economy

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the economy service.
var (
	ErrStoreUnavailable     = errors.New("ledger store unavailable")
	ErrResourceMissing      = errors.New("ledger resource missing")
	ErrRecordNotFound       = errors.New("ledger record not found")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrSelfTransfer         = errors.New("self transfer")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrBalanceUnavailable   = errors.New("balance unavailable")
	ErrPartialLedgerUpdate  = errors.New("partial ledger update")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrInvalidFieldName     = errors.New("invalid field name")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// InsufficientFundsError carries the balance that failed the check so
// callers can show it to the user. Matches ErrInsufficientFunds.
type InsufficientFundsError struct {
	Tokens   int64
	Required int64
}

// Error returns the formatted error message.
func (insufficient *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %d tokens, need %d", insufficient.Tokens, insufficient.Required)
}

// Is reports the sentinel this error stands for.
func (insufficient *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
