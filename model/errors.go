package model

import "errors"

// ErrorKind is a stable category for audit failures. A failed challenge is
// not an error; it is a Response with Verified=false.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "InvalidInput"
	KindRetrievalFailure    ErrorKind = "RetrievalFailure"
	KindProofStorageFailure ErrorKind = "ProofStorageFailure"
	KindSizeMismatch        ErrorKind = "SizeMismatch"
	KindInternalOverflow    ErrorKind = "InternalOverflow"
)

// Error is a tagged audit failure. Detail is for humans; branch on Kind.
type Error struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind) + ": " + e.Detail + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func WrapError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
