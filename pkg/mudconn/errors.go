package mudconn

import (
	"errors"
	"fmt"
	"net"
)

// ErrClosed is returned by Send on a closed connection and is the
// Disconnected cause when the connection was closed locally.
var ErrClosed = errors.New("mudconn: connection closed")

// ConnectionError reports a failure to reach or talk to the server.
type ConnectionError struct {
	Op   string // "dial", "read" or "write"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mudconn: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying error was a timeout.
func (e *ConnectionError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
