// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidGeometry      = errors.New("invalid geometry")
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrPredictorUnavailable = errors.New("predictor unavailable")
	ErrTradeGuard           = errors.New("trade guard")
	ErrUnknownPatternType   = errors.New("unknown pattern type")
	ErrOutOfOrderTicker     = errors.New("ticker out of order")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOrderNotFound        = errors.New("order not found")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDataNotFound         = errors.New("data not found")
	ErrDatabaseError        = errors.New("database error")
	ErrInputValidation      = errors.New("input validation failed")
)

// GeometryError describes a candidate whose envelope cannot exist.
type GeometryError struct {
	Subject string
	Reason  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid geometry [%s]: %s", e.Subject, e.Reason)
}

func (e *GeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

// NewGeometryError creates a new GeometryError.
func NewGeometryError(subject, reason string) *GeometryError {
	return &GeometryError{
		Subject: subject,
		Reason:  reason,
	}
}

// ConstraintError reports the first rule a pattern candidate failed.
type ConstraintError struct {
	PatternType string
	Rule        string
	Value       interface{}
}

func (e *ConstraintError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("constraint violation [%s] %s (%v)", e.PatternType, e.Rule, e.Value)
	}
	return fmt.Sprintf("constraint violation [%s] %s", e.PatternType, e.Rule)
}

func (e *ConstraintError) Unwrap() error {
	return ErrConstraintViolation
}

// NewConstraintError creates a new ConstraintError.
func NewConstraintError(patternType, rule string, value interface{}) *ConstraintError {
	return &ConstraintError{
		PatternType: patternType,
		Rule:        rule,
		Value:       value,
	}
}

// TradeGuardError represents an exchange-level precondition that blocked an order.
type TradeGuardError struct {
	TradeID string
	Reason  string
	Err     error
}

func (e *TradeGuardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade guard [%s]: %s: %v", e.TradeID, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade guard [%s]: %s", e.TradeID, e.Reason)
}

func (e *TradeGuardError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrTradeGuard
}

// Is makes every TradeGuardError match ErrTradeGuard, whatever it wraps.
func (e *TradeGuardError) Is(target error) bool {
	return target == ErrTradeGuard
}

// NewTradeGuardError creates a new TradeGuardError.
func NewTradeGuardError(tradeID, reason string, err error) *TradeGuardError {
	return &TradeGuardError{
		TradeID: tradeID,
		Reason:  reason,
		Err:     err,
	}
}

// UnknownPatternTypeError is returned when configuration names a pattern type
// the function container factory does not know.
type UnknownPatternTypeError struct {
	Name string
}

func (e *UnknownPatternTypeError) Error() string {
	return fmt.Sprintf("unknown pattern type: %q", e.Name)
}

func (e *UnknownPatternTypeError) Unwrap() error {
	return ErrUnknownPatternType
}

// NewUnknownPatternTypeError creates a new UnknownPatternTypeError.
func NewUnknownPatternTypeError(name string) *UnknownPatternTypeError {
	return &UnknownPatternTypeError{Name: name}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
