package errors

import (
	"fmt"
	"time"

	"github.com/standardbeagle/reflens/internal/types"
)

// Error types for the reference accounting engine
type ErrorType string

const (
	// Oracle errors
	ErrorTypeOracle        ErrorType = "oracle"
	ErrorTypeOracleTimeout ErrorType = "oracle_timeout"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypeFileTooLarge ErrorType = "file_too_large"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// AccountingError represents an error during an accounting or indexing pass.
// Oracle failures are always recoverable: the affected symbol is treated as
// having zero references and the pass continues.
type AccountingError struct {
	Type        ErrorType
	File        types.FileID
	Symbol      string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewOracleError creates an error for a failed oracle call
func NewOracleError(op string, err error) *AccountingError {
	return &AccountingError{
		Type:        ErrorTypeOracle,
		Operation:   op,
		Underlying:  err,
		Timestamp:   time.Now(),
		Recoverable: true,
	}
}

// NewConfigError creates an error for invalid configuration
func NewConfigError(op string, err error) *AccountingError {
	return &AccountingError{
		Type:       ErrorTypeConfig,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithFile adds file information to the error
func (e *AccountingError) WithFile(file types.FileID) *AccountingError {
	e.File = file
	return e
}

// WithSymbol adds the symbol name the operation was serving
func (e *AccountingError) WithSymbol(name string) *AccountingError {
	e.Symbol = name
	return e
}

// WithRecoverable marks the error as recoverable
func (e *AccountingError) WithRecoverable(recoverable bool) *AccountingError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *AccountingError) Error() string {
	switch {
	case e.File != "" && e.Symbol != "":
		return fmt.Sprintf("%s %s failed for %s in %s: %v", e.Type, e.Operation, e.Symbol, e.File, e.Underlying)
	case e.File != "":
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.File, e.Underlying)
	default:
		return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
	}
}

// Unwrap returns the underlying error for errors.Is/As
func (e *AccountingError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the operation can continue past this error
func (e *AccountingError) IsRecoverable() bool {
	return e.Recoverable
}
