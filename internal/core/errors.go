package core

import "errors"

var (
	errInvalidArguments = errors.New("invalid arguments")
	errTransportExists  = errors.New("transport already registered")
	errUnknownTransport = errors.New("unknown transport")

	// ErrForbidden возвращается Authorizer при отказе в доступе.
	ErrForbidden = errors.New("forbidden")
)
