package router

import (
	"fmt"
	"strings"
)

// EntityNotFoundError means neither the given entity name nor its
// prefixed form exists.
type EntityNotFoundError struct {
	Operation string
	Input     string
	Fallback  string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("Entity '%s' not found (also tried '%s')", e.Input, e.Fallback)
}

// MissingRequiredFieldsError lists every required field absent from a
// create call.
type MissingRequiredFieldsError struct {
	Operation string
	Fields    []string
}

func (e *MissingRequiredFieldsError) Error() string {
	return fmt.Sprintf("Missing required fields for %s: %s", e.Operation, strings.Join(e.Fields, ", "))
}

// MissingParameterError means a mandatory parameter such as id was not
// supplied.
type MissingParameterError struct {
	Operation string
	Param     string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("Missing required parameter '%s' for %s", e.Param, e.Operation)
}

// NoFieldsProvidedError means an update carried nothing but the id.
type NoFieldsProvidedError struct {
	Operation string
}

func (e *NoFieldsProvidedError) Error() string {
	return fmt.Sprintf("No fields provided to update for %s", e.Operation)
}

// InvalidArgumentError means a value could not be coerced to its
// parameter's type or violated a constraint.
type InvalidArgumentError struct {
	Operation string
	Param     string
	Reason    string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("Invalid value for '%s' in %s: %s", e.Param, e.Operation, e.Reason)
}

// ExecutionError wraps a CRM failure that happened after validation.
type ExecutionError struct {
	Operation string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Error executing %s: %v", e.Operation, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// UnknownToolError is returned for names no router path claims.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "Unknown tool: " + e.Name
}
