package rpc

import "errors"

var (
	// ErrBrokerUnavailable means a connection to the broker could not be
	// established or used.
	ErrBrokerUnavailable = errors.New("message broker unavailable")
	// ErrTimeout means no matching response arrived in time.
	ErrTimeout = errors.New("request timed out")
	// ErrMalformedMessage marks a body that is not a valid envelope.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrPublish means a response could not be sent to its reply destination.
	ErrPublish = errors.New("publish response")

	errConnectionLost = errors.New("broker connection lost")
)
