package gateway

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/repmgr-go/repmgr/internal/helper"
)

// ConnectionError wraps a transport-level failure: the server could not be
// reached, the TCP connection dropped, or the connection attempt timed out.
// §4.A: "fails with ConnectionError on transport failure".
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// PermissionError wraps an authentication or authorization failure. §4.A:
// "fails with PermissionError when the logged-in role lacks needed
// privileges".
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string { return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err) }
func (e *PermissionError) Unwrap() error { return e.Err }

// ProtocolError wraps an unexpected reply from the server: a malformed
// result set, a missing column, or a reply that doesn't match what the
// calling operation expected. §4.A: "fails with ProtocolError on
// unexpected replies".
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// classify maps a raw driver error into one of the three gateway error
// kinds. Postgres error codes are classified by their class (the first two
// digits of the five-character SQLSTATE code): class 28 is invalid
// authorization, class 08 is connection exception.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "28": // invalid_authorization_specification
			return &PermissionError{Op: op, Err: err}
		case "08": // connection_exception
			return &ConnectionError{Op: op, Err: err}
		default:
			return &ProtocolError{Op: op, Err: err}
		}
	}

	// Anything that isn't a well-formed Postgres error response (dial
	// failures, timeouts, EOF mid-handshake) is a transport problem. Driver
	// errors at this level occasionally echo the conninfo string they
	// failed to parse or connect with, so strip any password= or sslkey=
	// before it can reach a log line or an operator's terminal.
	return &ConnectionError{Op: op, Err: helper.SanitizeError(err)}
}

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

// IsPermissionError reports whether err is, or wraps, a PermissionError.
func IsPermissionError(err error) bool {
	var e *PermissionError
	return errors.As(err, &e)
}

// IsProtocolError reports whether err is, or wraps, a ProtocolError.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}
