// ABOUTME: Maps transport error codes onto user-meaningful log messages.
// ABOUTME: Classification affects only the log line, never the state machine.

package bot

import (
	"errors"
	"net"
	"syscall"

	"github.com/2389/botherd/internal/session"
)

// describeNetworkError turns a session-reported transport error into a
// message an operator can act on. Unknown codes pass through verbatim.
func describeNetworkError(nerr *session.NetworkError) string {
	switch nerr.Code {
	case "ECONNRESET":
		return "connection reset by server"
	case "ENOTFOUND", "EAI_AGAIN":
		return "server address could not be resolved"
	case "ECONNREFUSED":
		return "server refused the connection"
	case "ETIMEDOUT":
		return "connection timed out"
	case "EPIPE":
		return "connection closed unexpectedly"
	default:
		if nerr.Message != "" {
			return nerr.Message
		}
		return "network error (" + nerr.Code + ")"
	}
}

// describeDialError classifies a failed connection attempt.
func describeDialError(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "server refused the connection"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset by server"
	case errors.As(err, &dnsErr):
		return "server address could not be resolved"
	case isTimeout(err):
		return "connection timed out"
	default:
		return "connection failed: " + err.Error()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
