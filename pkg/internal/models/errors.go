package models

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeValidation  ErrorCode = "validation_failed"
	CodeForbidden   ErrorCode = "forbidden"
	CodeNotFound    ErrorCode = "not_found"
	CodeTransport   ErrorCode = "transport"
	CodeRateLimited ErrorCode = "rate_limited"
)

// CodedError is the error taxonomy carried back to the originating
// caller. It never reaches other room members.
type CodedError struct {
	Code   ErrorCode `json:"code"`
	Reason string    `json:"reason"`
}

func (e CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func ErrValidation(format string, args ...any) error {
	return CodedError{Code: CodeValidation, Reason: fmt.Sprintf(format, args...)}
}

func ErrForbidden(format string, args ...any) error {
	return CodedError{Code: CodeForbidden, Reason: fmt.Sprintf(format, args...)}
}

func ErrNotFound(format string, args ...any) error {
	return CodedError{Code: CodeNotFound, Reason: fmt.Sprintf(format, args...)}
}

func ErrTransport(format string, args ...any) error {
	return CodedError{Code: CodeTransport, Reason: fmt.Sprintf(format, args...)}
}

// AsCoded unwraps err into its CodedError if it carries one.
func AsCoded(err error) (CodedError, bool) {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded, true
	}
	return CodedError{}, false
}
