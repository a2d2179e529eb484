// Package resilience classifies campaign errors and provides retry helpers
// for read paths against the document store.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"
)

// Kind is the error taxonomy shared by the campaign components.
type Kind string

const (
	// KindTransientNetwork covers navigation and readiness failures of a
	// single extraction task. Never crosses the task pool boundary.
	KindTransientNetwork Kind = "transient_network"
	// KindDataStore covers document store write failures. Surfaced to the caller.
	KindDataStore Kind = "data_store"
	// KindResourceLeak is a stale browser found at reacquire. Logged, never returned.
	KindResourceLeak Kind = "resource_leak"
	// KindConfiguration is a startup configuration defect.
	KindConfiguration Kind = "configuration"
)

// Error tags an underlying error with a Kind and the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransientNetwork wraps err as a per-task network failure.
func TransientNetwork(op string, err error) error {
	return &Error{Kind: KindTransientNetwork, Op: op, Err: err}
}

// DataStore wraps err as a document store failure.
func DataStore(op string, err error) error {
	return &Error{Kind: KindDataStore, Op: op, Err: err}
}

// ResourceLeak wraps err as a leaked resource found and remediated.
func ResourceLeak(op string, err error) error {
	return &Error{Kind: KindResourceLeak, Op: op, Err: err}
}

// Configuration wraps err as a configuration failure.
func Configuration(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

// KindOf returns the Kind of the first tagged error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err's chain carries the given Kind.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// IsTransient returns true if err is worth retrying on a read path: tagged
// transient network errors, driver network/timeout errors, and common
// socket-level failures. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if IsKind(err, KindTransientNetwork) {
		return true
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"i/o timeout",
		"server selection timeout",
		"connection pool",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
