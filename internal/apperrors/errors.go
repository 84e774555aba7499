// Package apperrors provides the service's error kinds and their mapping to
// JSON-RPC and HTTP envelopes, so every protocol surface reports failures
// the same way.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// Kind classifies an error for propagation and envelope mapping.
type Kind string

const (
	KindInvalidSpecification Kind = "INVALID_SPECIFICATION"
	KindStoreIntegrity       Kind = "STORE_INTEGRITY_VIOLATION"
	KindNotFound             Kind = "NOT_FOUND"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindStoreUnavailable     Kind = "STORE_UNAVAILABLE"
	KindTimeout              Kind = "TIMEOUT"
	KindCancelled            Kind = "CANCELLED"
	KindInternal             Kind = "INTERNAL"
)

// JSON-RPC code bands. Invalid parameters use the standard code; every other
// domain failure shares the server-defined band with a subcode in the data
// payload.
const (
	CodeInvalidParams = -32602
	CodeDomainError   = -32000
	CodeInternalError = -32603
)

// Subcodes carried in the -32000 data payload.
const (
	SubcodeNotFound         = 1
	SubcodeStoreUnavailable = 2
	SubcodeCancelled        = 3
	SubcodeTimeout          = 4
)

// Error is the service's structured error. Field is set for invalid
// arguments, Offset for specification parse failures.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidSpecification reports a fatal parse failure at the given byte
// offset.
func NewInvalidSpecification(offset int64, err error) *Error {
	return &Error{
		Kind:    KindInvalidSpecification,
		Message: fmt.Sprintf("invalid specification at byte offset %d", offset),
		Offset:  offset,
		Err:     err,
	}
}

// NewStoreIntegrity reports a constraint violation that rolled back an
// ingest transaction.
func NewStoreIntegrity(message string, err error) *Error {
	return &Error{Kind: KindStoreIntegrity, Message: message, Err: err}
}

// NewNotFound reports a missing entity.
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidArgument reports a rejected input, naming the offending field.
func NewInvalidArgument(field, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// NewStoreUnavailable reports a transient store failure the transport layer
// may retry.
func NewStoreUnavailable(message string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: message, Err: err}
}

// NewTimeout reports an operation that exceeded its deadline.
func NewTimeout(operation string) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("operation %s timed out", operation)}
}

// NewCancelled reports an operation stopped by caller cancellation.
func NewCancelled(operation string) *Error {
	return &Error{Kind: KindCancelled, Message: fmt.Sprintf("operation %s cancelled", operation)}
}

// NewInternal reports an unexpected failure.
func NewInternal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the Kind of err, or KindInternal for foreign errors.
// Context errors map to their retrieval kinds.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidArgument reports whether err carries KindInvalidArgument.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsStoreUnavailable reports whether err carries KindStoreUnavailable.
func IsStoreUnavailable(err error) bool { return KindOf(err) == KindStoreUnavailable }

// IsTimeout reports whether err carries KindTimeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsCancelled reports whether err carries KindCancelled.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// FromContext converts a context error into the matching Error. Returns err
// unchanged when it is not a context error.
func FromContext(operation string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeout(operation)
	case errors.Is(err, context.Canceled):
		return NewCancelled(operation)
	default:
		return err
	}
}

// errorData is the data payload attached to domain-band JSON-RPC errors.
type errorData struct {
	Kind    Kind   `json:"kind"`
	Subcode int    `json:"subcode,omitempty"`
	Field   string `json:"field,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
}

/// ToJSONRPCError maps err onto the protocol's error bands: -32602 for
// invalid arguments, -32000 with a subcode for domain errors, -32603
// otherwise.
func ToJSONRPCError(id interface{}, err error) *protocol.JSONRPCResponse {
	var e *Error
	if !errors.As(err, &e) {
		if ctxErr := FromContext("request", err); ctxErr != err {
			return ToJSONRPCError(id, ctxErr)
		}
		e = NewInternal("internal error", err)
	}

	rpcErr := &protocol.JSONRPCError{Message: e.Message}
	data := errorData{Kind: e.Kind, Field: e.Field, Offset: e.Offset}

	switch e.Kind {
	case KindInvalidArgument:
		rpcErr.Code = CodeInvalidParams
	case KindNotFound:
		rpcErr.Code = CodeDomainError
		data.Subcode = SubcodeNotFound
	case KindStoreUnavailable:
		rpcErr.Code = CodeDomainError
		data.Subcode = SubcodeStoreUnavailable
	case KindCancelled:
		rpcErr.Code = CodeDomainError
		data.Subcode = SubcodeCancelled
	case KindTimeout:
		rpcErr.Code = CodeDomainError
		data.Subcode = SubcodeTimeout
	case KindInvalidSpecification, KindStoreIntegrity:
		rpcErr.Code = CodeDomainError
	default:
		rpcErr.Code = CodeInternalError
	}
	rpcErr.Data = data

	return &protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErr,
	}
}

// ToHTTPStatus maps err onto an HTTP status for the REST-ish surfaces.
func ToHTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument, KindInvalidSpecification:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
