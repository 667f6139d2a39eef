// Package catlang implements the C@ line interpreter: a token cursor, a
// variable store, a recursive-descent integer evaluator and the statement
// dispatcher for config, print and assignment lines.
package catlang

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a statement was rejected.
type ErrorKind int

const (
	KindArity ErrorKind = iota + 1
	KindInvalidBaseValue
	KindInvalidVariableName
	KindMissingAssignmentOperator
	KindUnexpectedToken
	KindUnexpectedEndOfInput
	KindDivisionByZero
	KindUnbalancedParentheses
	KindUndefinedVariable
	KindInvalidPrimaryExpression
)

// Error categories, shown as message prefix.
const (
	ErrCategorySyntax     = "SYNTAX ERROR"
	ErrCategoryEvaluation = "EVALUATION ERROR"
)

type kindInfo struct {
	code     string
	category string
	message  string
}

// kindTable maps every kind to its code, category and user-facing text.
var kindTable = map[ErrorKind]kindInfo{
	KindArity:                     {"ARITY_ERROR", ErrCategorySyntax, "Wrong number of arguments for config statement."},
	KindInvalidBaseValue:          {"INVALID_BASE_VALUE", ErrCategorySyntax, "is not a permitted value for config statement."},
	KindInvalidVariableName:       {"INVALID_VARIABLE_NAME", ErrCategorySyntax, "Variable must begin with a letter and contain letters and digits only."},
	KindMissingAssignmentOperator: {"MISSING_ASSIGNMENT_OPERATOR", ErrCategorySyntax, "Equals sign (=) expected after variable name."},
	KindUnexpectedToken:           {"UNEXPECTED_TOKEN", ErrCategorySyntax, "Could not consume token"},
	KindUnexpectedEndOfInput:      {"UNEXPECTED_END_OF_INPUT", ErrCategorySyntax, "Consumed past last token."},
	KindDivisionByZero:            {"DIVISION_BY_ZERO", ErrCategoryEvaluation, "Attempted division by zero."},
	KindUnbalancedParentheses:     {"UNBALANCED_PARENTHESES", ErrCategorySyntax, "Parentheses must be closed."},
	KindUndefinedVariable:         {"UNDEFINED_VARIABLE", ErrCategoryEvaluation, "Variable not set."},
	KindInvalidPrimaryExpression:  {"INVALID_PRIMARY_EXPRESSION", ErrCategorySyntax, "Primary must be a math expression in parentheses, an integer, or a variable."},
}

// String returns the kind's code, e.g. DIVISION_BY_ZERO.
func (k ErrorKind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.code
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Category returns SYNTAX ERROR or EVALUATION ERROR.
func (k ErrorKind) Category() string {
	if info, ok := kindTable[k]; ok {
		return info.category
	}
	return ErrCategorySyntax
}

// Error is the single structured failure a statement can produce.
type Error struct {
	Kind     ErrorKind
	Token    string // offending token, empty when not applicable
	Expected string // token Consume wanted, only for KindUnexpectedToken
	Position int    // cursor position at the time of failure
}

// Error implements the error interface.
func (e *Error) Error() string {
	info, ok := kindTable[e.Kind]
	if !ok {
		return fmt.Sprintf("unknown error kind %d", int(e.Kind))
	}
	switch e.Kind {
	case KindInvalidBaseValue:
		return fmt.Sprintf("%s: %s %s", info.category, e.Token, info.message)
	case KindUnexpectedToken:
		return fmt.Sprintf("%s: %s %s (found %s)", info.category, info.message, e.Expected, e.Token)
	case KindUndefinedVariable:
		return fmt.Sprintf("%s: %s (%s)", info.category, info.message, e.Token)
	}
	return info.category + ": " + info.message
}

// Is reports whether target is an *Error of the same kind, so the sentinel
// values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrArity                     = &Error{Kind: KindArity}
	ErrInvalidBaseValue          = &Error{Kind: KindInvalidBaseValue}
	ErrInvalidVariableName       = &Error{Kind: KindInvalidVariableName}
	ErrMissingAssignmentOperator = &Error{Kind: KindMissingAssignmentOperator}
	ErrUnexpectedToken           = &Error{Kind: KindUnexpectedToken}
	ErrUnexpectedEndOfInput      = &Error{Kind: KindUnexpectedEndOfInput}
	ErrDivisionByZero            = &Error{Kind: KindDivisionByZero}
	ErrUnbalancedParentheses     = &Error{Kind: KindUnbalancedParentheses}
	ErrUndefinedVariable         = &Error{Kind: KindUndefinedVariable}
	ErrInvalidPrimaryExpression  = &Error{Kind: KindInvalidPrimaryExpression}
)

func newError(kind ErrorKind, token string, pos int) *Error {
	return &Error{Kind: kind, Token: token, Position: pos}
}

// KindOf extracts the ErrorKind from err, or 0 when err is not a catlang error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
