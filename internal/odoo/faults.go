package odoo

import (
	"context"
	"errors"
	"io"
	"net"
	"net/rpc"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
)

// Fault is a structured fault returned by the remote store.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return "Fault(" + strconv.Itoa(f.Code) + "): " + f.Message
}

// CallError is a classified remote failure. Message is already cleaned for
// display; errors.Is matches the category sentinel and the cause.
type CallError struct {
	Category error
	Message  string
	Cause    error
}

func (e *CallError) Error() string {
	return e.Message
}

func (e *CallError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Category}
	}
	return []error{e.Category, e.Cause}
}

// Odoo fault codes: 1 generic/UserError, 2 missing record, 3 access denied,
// 4 access/validation error.
const faultAccessDenied = 3

var faultPattern = regexp.MustCompile(`(?s)^Fault\((-?\d+)\): (.*)$`)

// parseFault recovers a *Fault from err. The xmlrpc client reports faults
// as an rpc.ServerError carrying "Fault(code): message".
func parseFault(err error) (*Fault, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault, true
	}

	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return nil, false
	}
	m := faultPattern.FindStringSubmatch(string(serverErr))
	if m == nil {
		return nil, false
	}
	code, _ := strconv.Atoi(m[1])
	return &Fault{Code: code, Message: m[2]}, true
}

// Classify maps a transport error into the error taxonomy. Already
// classified errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *CallError
	if errors.As(err, &classified) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &CallError{Category: apperrors.ErrInternal, Message: "request cancelled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &CallError{Category: apperrors.ErrTransient, Message: "request timed out", Cause: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &CallError{Category: apperrors.ErrTransient, Message: "connection refused, check that the Odoo server is running", Cause: err}
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF),
		errors.Is(err, rpc.ErrShutdown):
		return &CallError{Category: apperrors.ErrTransient, Message: "connection to the Odoo server was closed", Cause: err}
	case strings.Contains(err.Error(), "bad status code"):
		return &CallError{Category: apperrors.ErrTransient, Message: "Odoo server unavailable: " + err.Error(), Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CallError{Category: apperrors.ErrTransient, Message: "request timed out", Cause: err}
	}

	if fault, ok := parseFault(err); ok {
		if isAuthFault(fault) {
			return &CallError{Category: apperrors.ErrAuthentication, Message: "access denied: " + cleanFaultMessage(fault.Message), Cause: fault}
		}
		return &CallError{Category: apperrors.ErrRemoteValidation, Message: cleanFaultMessage(fault.Message), Cause: fault}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &CallError{Category: apperrors.ErrTransient, Message: "network error: " + opErr.Err.Error(), Cause: err}
	}

	return &CallError{Category: apperrors.ErrInternal, Message: err.Error(), Cause: err}
}

func isAuthFault(f *Fault) bool {
	if f.Code == faultAccessDenied {
		return true
	}
	msg := strings.ToLower(f.Message)
	return strings.Contains(msg, "accessdenied") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "session expired") ||
		strings.Contains(msg, "sessionexpired")
}

// cleanFaultMessage strips server tracebacks down to the message a user can act on.
func cleanFaultMessage(msg string) string {
	if i := strings.Index(msg, "ValidationError:"); i >= 0 {
		return "Validation Error: " + firstLine(msg[i+len("ValidationError:"):])
	}
	if i := strings.Index(msg, "UserError:"); i >= 0 {
		return firstLine(msg[i+len("UserError:"):])
	}

	lines := strings.Split(strings.TrimSpace(msg), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if j := strings.Index(line, "Error: "); j >= 0 && strings.HasPrefix(line, "odoo.") {
			return strings.TrimSpace(line[j+len("Error: "):])
		}
		return line
	}
	return "unknown remote error"
}

var tupleMessage = regexp.MustCompile(`^\(\s*['"](.*?)['"]\s*,`)

// firstLine returns the first line of s, unwrapping the ('message', None)
// tuple form older servers use.
func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	line = strings.TrimSpace(line)
	if m := tupleMessage.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return strings.Trim(line, "'\"")
}
