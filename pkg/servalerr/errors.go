// Package servalerr defines the tagged error kinds shared across the agent's
// components, so that the HTTP layer can map them to status codes without
// each package inventing its own sentinel errors.
package servalerr

import "fmt"

// Kind identifies the category of failure a component reported.
type Kind string

const (
	// KindNotFound means a requested manifest, blob, or job is absent on this node.
	KindNotFound Kind = "not_found"
	// KindAddressInvalid means a blob key is malformed; distinct from NotFound
	// so callers can discriminate 400 from 404.
	KindAddressInvalid Kind = "address_invalid"
	// KindServiceUnavailable means no local capability and no peer advertising
	// the required role could be found.
	KindServiceUnavailable Kind = "service_unavailable"
	// KindInvalidState means a scheduler state transition was rejected.
	KindInvalidState Kind = "invalid_operation_for_job_state"
	// KindExecution means the Wasm guest trapped or exited non-zero.
	KindExecution Kind = "execution_error"
	// KindInterop means guest/host memory exchange failed.
	KindInterop Kind = "interop_error"
	// KindPermissionDenied means a job attempted a capability not listed in
	// its permissions.
	KindPermissionDenied Kind = "permission_denied"
	// KindStorage means a lower storage tier's I/O failed.
	KindStorage Kind = "storage_error"
	// KindTransport means an outbound relay failed (connect, timeout, malformed response).
	KindTransport Kind = "transport_error"
)

// Error is a tagged error carrying the kind plus an optional cause and,
// for execution errors, the captured stdout/stderr streams.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Stdout and Stderr are populated only for KindExecution.
	Stdout []byte
	Stderr []byte
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a tagged error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a tagged error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Execution builds an execution-failure error carrying captured streams.
func Execution(message string, stdout, stderr []byte, cause error) *Error {
	return &Error{Kind: KindExecution, Message: message, Cause: cause, Stdout: stdout, Stderr: stderr}
}

// PermissionDenied builds the permission-denied error for a named capability.
func PermissionDenied(name string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf("permission denied for %q", name)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a *Error.
// Unrecognized errors are reported as an empty Kind.
func KindOf(err error) Kind {
	var se *Error
	if asError(err, &se) {
		return se.Kind
	}
	return ""
}

func asError(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
