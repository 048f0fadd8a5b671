package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Sentinel values for the engine's failure taxonomy
var (
	// ErrInvalidArgument marks a contract violation against the session state
	// machine. It is the only class of failure that stops caller flow.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedInput marks a landmark or blendshape payload that is missing
	// the fields an analyzer needs. Analyzers absorb it and keep their
	// last-known output.
	ErrMalformedInput = errors.New("malformed input")

	// ErrTransientServiceFailure marks a recoverable transcription or
	// classification stream failure. Retried internally, never surfaced.
	ErrTransientServiceFailure = errors.New("transient service failure")

	ErrNotFound = errors.New("resource not found")
	ErrInternal = errors.New("internal error")
)

// Error codes attached to structured errors
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeMalformedInput   = "MALFORMED_INPUT"
	CodeTransientFailure = "TRANSIENT_SERVICE_FAILURE"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error represents a structured error with its creation site and context fields
type Error struct {
	original error
	message  string
	fields   map[string]interface{}

	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 && fields[0] != nil {
		return fields[0]
	}
	return make(map[string]interface{})
}

func newAt(skip int, original error, message, code string, fields map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(skip + 1)
	return &Error{
		original: original,
		message:  message,
		fields:   fields,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, errors.New(message), message, "", firstFields(fields))
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newAt(1, err, message, GetErrorCode(err), firstFields(fields))
}

// NewInvalidArgument reports a state machine contract violation
func NewInvalidArgument(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrInvalidArgument, message, CodeInvalidArgument, firstFields(fields))
}

// NewMalformedInput reports an analyzer payload missing expected fields
func NewMalformedInput(analyzer, details string, fields ...map[string]interface{}) *Error {
	fieldMap := firstFields(fields)
	fieldMap["analyzer"] = analyzer
	return newAt(1, ErrMalformedInput, fmt.Sprintf("%s: %s", analyzer, details), CodeMalformedInput, fieldMap)
}

// NewTransient reports a recoverable external stream failure
func NewTransient(service string, cause error, fields ...map[string]interface{}) *Error {
	fieldMap := firstFields(fields)
	fieldMap["service"] = service
	if cause != nil {
		fieldMap["cause"] = cause.Error()
	}
	return newAt(1, ErrTransientServiceFailure, fmt.Sprintf("%s stream interrupted", service), CodeTransientFailure, fieldMap)
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, ErrNotFound, message, CodeNotFound, firstFields(fields))
}

func (e *Error) clone(extra int) *Error {
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+extra),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return result
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(0)
	result.Code = code
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" || e.message == e.original.Error() {
		return e.original.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Is reports whether the wrapped error matches target
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if errors.Is(e.original, target) {
		return true
	}
	return e == target
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"message":  e.Error(),
		"location": e.Location(),
	}
	if e.Code != "" {
		result["code"] = e.Code
	}
	if len(e.fields) > 0 {
		result["context"] = e.fields
	}
	return result
}

// IsInvalidArgument reports whether err is a state machine contract violation
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsMalformedInput reports whether err is an absorbed analyzer input failure
func IsMalformedInput(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsTransient reports whether err should be retried by the owning analyzer
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientServiceFailure)
}

// IsNotFound reports whether err names a missing session
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
