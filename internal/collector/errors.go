package collector

import "errors"

// Runtime error classes. Collectors wrap one of these so callers can tell
// an unreachable node from a node that answered nonsense.
var (
	// ErrTransport covers connection failures, timeouts and non-2xx statuses.
	ErrTransport = errors.New("transport error")

	// ErrProtocol means the response was not shaped as expected: invalid
	// JSON, a JSON-RPC error object, or a missing field.
	ErrProtocol = errors.New("protocol error")

	// ErrParse means a field was present but its value could not be decoded.
	ErrParse = errors.New("parse error")
)
