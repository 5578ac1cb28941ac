// Package domain defines core types, interfaces, and errors for DDL coordination.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *ValidationError) SQLState() string { return "22023" }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UndefinedEntityError indicates a DDL target that does not exist.
type UndefinedEntityError struct {
	Message string
}

func (e *UndefinedEntityError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *UndefinedEntityError) SQLState() string { return "42P01" }

// DuplicateEntityError indicates a DDL target that already exists.
type DuplicateEntityError struct {
	Message string
}

func (e *DuplicateEntityError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *DuplicateEntityError) SQLState() string { return "42P07" }

// InvalidColumnDefinitionError indicates a view output column that cannot be
// stored, such as an unaliased aggregate.
type InvalidColumnDefinitionError struct {
	Message string
}

func (e *InvalidColumnDefinitionError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *InvalidColumnDefinitionError) SQLState() string { return "42611" }

// InternalExecutionError indicates a failure the caller cannot correct: a
// broken catalog invariant, a node that rejected a task, or a stream manager
// that lacks a required capability.
type InternalExecutionError struct {
	Message string
}

func (e *InternalExecutionError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *InternalExecutionError) SQLState() string { return "XX000" }

// DependentObjectError indicates an entity that cannot be dropped on its own
// because another entity owns it.
type DependentObjectError struct {
	Message string
}

func (e *DependentObjectError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *DependentObjectError) SQLState() string { return "2BP01" }

// UnsupportedStatementError indicates SQL outside the supported DDL surface.
type UnsupportedStatementError struct {
	Message string
}

func (e *UnsupportedStatementError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *UnsupportedStatementError) SQLState() string { return "0A000" }

// SyntaxError indicates SQL text that does not parse.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *SyntaxError) SQLState() string { return "42601" }

// UndefinedColumnError indicates a query that references an unknown column.
type UndefinedColumnError struct {
	Message string
}

func (e *UndefinedColumnError) Error() string { return e.Message }

// SQLState implements SQLStateError.
func (e *UndefinedColumnError) SQLState() string { return "42703" }

// SQLStateError is implemented by errors that map to a PostgreSQL SQLSTATE.
type SQLStateError interface {
	error
	SQLState() string
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrUndefinedEntity creates an UndefinedEntityError with a formatted message.
func ErrUndefinedEntity(format string, args ...interface{}) *UndefinedEntityError {
	return &UndefinedEntityError{Message: fmt.Sprintf(format, args...)}
}

// ErrDuplicateEntity creates a DuplicateEntityError with a formatted message.
func ErrDuplicateEntity(format string, args ...interface{}) *DuplicateEntityError {
	return &DuplicateEntityError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidColumnDefinition creates an InvalidColumnDefinitionError with a formatted message.
func ErrInvalidColumnDefinition(format string, args ...interface{}) *InvalidColumnDefinitionError {
	return &InvalidColumnDefinitionError{Message: fmt.Sprintf(format, args...)}
}

// ErrInternalExecution creates an InternalExecutionError with a formatted message.
func ErrInternalExecution(format string, args ...interface{}) *InternalExecutionError {
	return &InternalExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrDependentObject creates a DependentObjectError with a formatted message.
func ErrDependentObject(format string, args ...interface{}) *DependentObjectError {
	return &DependentObjectError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupportedStatement creates an UnsupportedStatementError with a formatted message.
func ErrUnsupportedStatement(format string, args ...interface{}) *UnsupportedStatementError {
	return &UnsupportedStatementError{Message: fmt.Sprintf(format, args...)}
}

// ErrSyntax creates a SyntaxError with a formatted message.
func ErrSyntax(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

// ErrUndefinedColumn creates an UndefinedColumnError with a formatted message.
func ErrUndefinedColumn(format string, args ...interface{}) *UndefinedColumnError {
	return &UndefinedColumnError{Message: fmt.Sprintf(format, args...)}
}
