// Package omrserrors formalizes the OMRS error taxonomy of spec §7 as a
// single typed error, grounded on the sibling ucl-core module's
// staging.CodedError pattern (Code + Retryable + wrapped cause), referenced
// from ucl-core/internal/orchestration/manager.go's classifyError.
package omrserrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories of spec §7.
type Kind string

const (
	KindInvalidParameter        Kind = "InvalidParameter"
	KindUserNotAuthorized        Kind = "UserNotAuthorized"
	KindRepositoryError          Kind = "RepositoryError"
	KindTypeError                Kind = "TypeError"
	KindInvalidTypeDef           Kind = "InvalidTypeDef"
	KindTypeDefNotKnown          Kind = "TypeDefNotKnown"
	KindTypeDefConflict          Kind = "TypeDefConflict"
	KindTypeDefInUse             Kind = "TypeDefInUse"
	KindTypeDefNotSupported      Kind = "TypeDefNotSupported"
	KindPatchError               Kind = "PatchError"
	KindEntityNotKnown           Kind = "EntityNotKnown"
	KindEntityProxyOnly          Kind = "EntityProxyOnly"
	KindEntityNotDeleted         Kind = "EntityNotDeleted"
	KindEntityConflict           Kind = "EntityConflict"
	KindHomeEntity               Kind = "HomeEntity"
	KindInvalidEntity            Kind = "InvalidEntity"
	KindRelationshipNotKnown     Kind = "RelationshipNotKnown"
	KindRelationshipNotDeleted   Kind = "RelationshipNotDeleted"
	KindRelationshipConflict     Kind = "RelationshipConflict"
	KindHomeRelationship         Kind = "HomeRelationship"
	KindInvalidRelationship      Kind = "InvalidRelationship"
	KindPropertyError            Kind = "PropertyError"
	KindClassificationError      Kind = "ClassificationError"
	KindStatusNotSupported       Kind = "StatusNotSupported"
	KindPagingError               Kind = "PagingError"
	KindFunctionNotSupported     Kind = "FunctionNotSupported"
	KindLogicError               Kind = "LogicError"
	KindNoHomeForInstance        Kind = "NoHomeForInstance"
	KindNoRepositories           Kind = "NoRepositories"
)

// Error is the single error type used throughout omrs-core.
type Error struct {
	Kind      Kind
	Parameter string // set for KindInvalidParameter
	Retryable bool   // meaningful for KindRepositoryError
	Err       error
}

func (e *Error) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("%s: %s (parameter=%s)", e.Kind, e.Err, e.Parameter)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeValue and RetryableStatus expose Kind and Retryable in the shape of
// the CodedError pattern; use KindOf to read the Kind of a wrapped error.
func (e *Error) CodeValue() string   { return string(e.Kind) }
func (e *Error) RetryableStatus() bool { return e.Retryable }

// New builds an *Error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// InvalidParameter builds a KindInvalidParameter error naming the offending
// parameter, per spec §7.
func InvalidParameter(param, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameter, Parameter: param, Err: fmt.Errorf(format, args...)}
}

// Repository wraps a storage-engine failure, optionally retryable.
func Repository(retryable bool, err error) *Error {
	return &Error{Kind: KindRepositoryError, Retryable: retryable, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise "" .
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsSoftFederationError reports whether err should be treated as non-fatal
// during a federated read fan-out (spec §4.2 step 3): RepositoryError,
// FunctionNotSupported, or UserNotAuthorized.
func IsSoftFederationError(err error) bool {
	switch KindOf(err) {
	case KindRepositoryError, KindFunctionNotSupported, KindUserNotAuthorized:
		return true
	default:
		return false
	}
}
