package domain

import (
	"errors"
	"fmt"
)

// AppError carries a stable code and a client-safe message. Err holds
// internal detail that is logged but never sent to clients.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches any AppError with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) Wrap(err error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Err: err}
}

func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{Code: e.Code, Message: msg, Err: e.Err}
}

const (
	CodeUnauthenticated     = "unauthenticated"
	CodeForbidden           = "forbidden"
	CodeInvalidRequest      = "invalid_request"
	CodePersistence         = "persistence_error"
	CodeArchivalFailure     = "archival_failure"
	CodeNotAMember          = "not_a_member"
	CodeDuplicateConnection = "duplicate_connection"
	CodeRateLimited         = "rate_limited"
	CodeNotFound            = "not_found"
)

var (
	ErrUnauthenticated     = &AppError{Code: CodeUnauthenticated, Message: "unauthenticated"}
	ErrForbidden           = &AppError{Code: CodeForbidden, Message: "forbidden"}
	ErrInvalidRequest      = &AppError{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrPersistence         = &AppError{Code: CodePersistence, Message: "storage unavailable, retry later"}
	ErrArchivalFailure     = &AppError{Code: CodeArchivalFailure, Message: "archival failed"}
	ErrNotAMember          = &AppError{Code: CodeNotAMember, Message: "not a member of this group"}
	ErrDuplicateConnection = &AppError{Code: CodeDuplicateConnection, Message: "connection already bound"}
	ErrRateLimited         = &AppError{Code: CodeRateLimited, Message: "too many messages, slow down"}
	ErrNotFound            = &AppError{Code: CodeNotFound, Message: "not found"}
)

// CodeOf returns the AppError code of err, or "internal" for anything
// unclassified.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal"
}

// PublicMessage returns the message safe to show to a client.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
