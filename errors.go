package lumen

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error (spec.md §7's closed kind set).
type ErrorType string

const (
	ErrorTypeParse     ErrorType = "parse"
	ErrorTypeBind      ErrorType = "bind"
	ErrorTypePlan      ErrorType = "plan"
	ErrorTypeConvert   ErrorType = "convert"
	ErrorTypeExecute   ErrorType = "execute"
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error is the unified error type every stage of the pipeline returns.
// It mirrors the teacher's FormaError shape (chained With* setters,
// Unwrap() for errors.Is/As), but its Code values are exactly the closed
// sub-kinds spec.md §7 names within each ErrorType.
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Span    *SourceSpan    `json:"span,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// SourceSpan is a source location inherited from the assumed AST's node
// positions, attached to planning errors per spec.md §7.
type SourceSpan struct {
	Line   int
	Column int
}

func (e *Error) Error() string {
	if e.Span != nil {
		return fmt.Sprintf("[%s:%s] %d:%d: %s", e.Type, e.Code, e.Span.Line, e.Span.Column, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithSpan(line, column int) *Error {
	e.Span = &SourceSpan{Line: line, Column: column}
	return e
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ErrorCode returns err's Code if it (or something it wraps) is a *Error,
// and "" otherwise — a convenience for callers that only need to branch on
// the code, not handle the full chain.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Error codes, grouped by ErrorType exactly as spec.md §7 enumerates them.
const (
	CodeBindNotFound         = "BIND_NOT_FOUND"
	CodeBindDuplicated       = "BIND_DUPLICATED"
	CodeBindAmbiguousColumn  = "BIND_AMBIGUOUS_COLUMN"
	CodeBindIllegalGroupBy   = "BIND_ILLEGAL_GROUP_BY"
	CodeBindIllegalDistinct  = "BIND_ILLEGAL_DISTINCT"
	CodeBindInvalidType      = "BIND_INVALID_TYPE"

	CodePlanInvalid = "PLAN_INVALID"

	CodeConvertNoCast     = "CONVERT_NO_CAST"
	CodeConvertOverflow   = "CONVERT_OVERFLOW"
	CodeConvertParseError = "CONVERT_PARSE_ERROR"
	CodeConvertNoBinaryOp = "CONVERT_NO_BINARY_OP"

	CodeExecuteStorage   = "EXECUTE_STORAGE"
	CodeExecuteCancelled = "EXECUTE_CANCELLED"
	CodeExecuteIO        = "EXECUTE_IO"
)

func NewParseError(message string) *Error {
	return &Error{Type: ErrorTypeParse, Code: "PARSE", Message: message}
}

func NewBindNotFoundError(kind, name string) *Error {
	return &Error{
		Type:    ErrorTypeBind,
		Code:    CodeBindNotFound,
		Message: fmt.Sprintf("%s %q not found", kind, name),
		Details: map[string]any{"kind": kind, "name": name},
	}
}

func NewBindDuplicatedError(kind, name string) *Error {
	return &Error{
		Type:    ErrorTypeBind,
		Code:    CodeBindDuplicated,
		Message: fmt.Sprintf("%s %q already exists", kind, name),
		Details: map[string]any{"kind": kind, "name": name},
	}
}

func NewAmbiguousColumnError(name string) *Error {
	return &Error{
		Type:    ErrorTypeBind,
		Code:    CodeBindAmbiguousColumn,
		Message: fmt.Sprintf("column reference %q is ambiguous", name),
		Details: map[string]any{"name": name},
	}
}

func NewIllegalGroupByError(expr string) *Error {
	return &Error{
		Type:    ErrorTypeBind,
		Code:    CodeBindIllegalGroupBy,
		Message: fmt.Sprintf("expression %q must appear in GROUP BY or be used in an aggregate function", expr),
	}
}

func NewIllegalDistinctError(expr string) *Error {
	return &Error{
		Type:    ErrorTypeBind,
		Code:    CodeBindIllegalDistinct,
		Message: fmt.Sprintf("SELECT DISTINCT's ORDER BY expression %q must appear in the select list", expr),
	}
}

func NewInvalidTypeError(message string) *Error {
	return &Error{Type: ErrorTypeBind, Code: CodeBindInvalidType, Message: message}
}

func NewPlanInvalidError(message string) *Error {
	return &Error{Type: ErrorTypePlan, Code: CodePlanInvalid, Message: message}
}

func NewNoCastError(from, to DataType) *Error {
	return &Error{
		Type:    ErrorTypeConvert,
		Code:    CodeConvertNoCast,
		Message: fmt.Sprintf("cannot cast %s to %s", from, to),
		Details: map[string]any{"from": from.String(), "to": to.String()},
	}
}

func NewOverflowError(value string, target DataType) *Error {
	return &Error{
		Type:    ErrorTypeConvert,
		Code:    CodeConvertOverflow,
		Message: fmt.Sprintf("value %q overflows %s", value, target),
		Details: map[string]any{"value": value, "target": target.String()},
	}
}

func NewParseValueError(text string, target DataType) *Error {
	return &Error{
		Type:    ErrorTypeConvert,
		Code:    CodeConvertParseError,
		Message: fmt.Sprintf("cannot parse %q as %s", text, target),
		Details: map[string]any{"text": text, "target": target.String()},
	}
}

func NewNoBinaryOpError(op string, left, right DataType) *Error {
	return &Error{
		Type:    ErrorTypeConvert,
		Code:    CodeConvertNoBinaryOp,
		Message: fmt.Sprintf("no binary operator %s for %s and %s", op, left, right),
		Details: map[string]any{"op": op, "left": left.String(), "right": right.String()},
	}
}

func NewStorageError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeExecute, Code: CodeExecuteStorage, Message: message, Cause: cause}
}

func NewCancelledError() *Error {
	return &Error{Type: ErrorTypeCancelled, Code: CodeExecuteCancelled, Message: "statement cancelled"}
}

func NewIOError(kind, message string) *Error {
	return &Error{
		Type:    ErrorTypeExecute,
		Code:    CodeExecuteIO,
		Message: message,
		Details: map[string]any{"kind": kind},
	}
}
