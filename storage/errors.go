package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidKey  = errors.New("storage: invalid key")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrUnsupported = errors.New("storage: operation not supported by backend")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
