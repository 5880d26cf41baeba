package kubeapi

import (
	"errors"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrTimeout and ErrCancelled are wrapped inside ClientError so callers can
// tell transport timeouts and cancellations apart with errors.Is.
var (
	ErrTimeout   = errors.New("kubeapi: request timed out")
	ErrCancelled = errors.New("kubeapi: request cancelled")
)

// InvalidURLError means the request builder produced a URL that failed to
// parse.
type InvalidURLError struct{ Err error }

func (e *InvalidURLError) Error() string { return fmt.Sprintf("kubeapi: invalid url: %v", e.Err) }
func (e *InvalidURLError) Unwrap() error { return e.Err }

// BadRequestError means the caller violated a request-builder precondition,
// e.g. a POST body missing metadata.name.
type BadRequestError struct{ Message string }

func (e *BadRequestError) Error() string { return "kubeapi: bad request: " + e.Message }

// EmptyResponseError means the server returned a zero-length body where one
// was required.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string { return "kubeapi: empty response body" }

// DecodingError means JSON decoding failed for the expected shape.
type DecodingError struct {
	Message string
	Err     error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("kubeapi: decoding error: %s: %v", e.Message, e.Err)
}
func (e *DecodingError) Unwrap() error { return e.Err }

// StatusError means the server answered with a non-2xx/3xx status and a
// valid meta.v1.Status envelope.
type StatusError struct{ Status metav1.Status }

func (e *StatusError) Error() string {
	return fmt.Sprintf("kubeapi: server status: code=%d reason=%s message=%q",
		e.Status.Code, e.Status.Reason, e.Status.Message)
}

// StatusCode returns the HTTP status code carried by the Status envelope.
func (e *StatusError) StatusCode() int { return int(e.Status.Code) }

// UnexpectedError means the server answered with a non-2xx/3xx status but
// the body wasn't a decodable Status envelope.
type UnexpectedError struct {
	StatusCode int
	Body       []byte
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("kubeapi: unexpected response: code=%d body=%q", e.StatusCode, e.Body)
}

// ClientError wraps a transport, I/O or TLS failure.
type ClientError struct{ Err error }

func (e *ClientError) Error() string { return fmt.Sprintf("kubeapi: client error: %v", e.Err) }
func (e *ClientError) Unwrap() error { return e.Err }

// MaxRetriesReachedError means a WatchTask exhausted its retry budget.
type MaxRetriesReachedError struct{ Request *Request }

func (e *MaxRetriesReachedError) Error() string {
	if e.Request == nil {
		return "kubeapi: max retries reached"
	}
	return fmt.Sprintf("kubeapi: max retries reached for %s %s", e.Request.Method, e.Request.URL)
}

// MethodNotAllowed builds the StatusError a capability check surfaces when a
// caller invokes a verb the resource kind doesn't support.
func MethodNotAllowed(verb string) *StatusError {
	return &StatusError{Status: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    405,
		Reason:  metav1.StatusReasonMethodNotAllowed,
		Message: fmt.Sprintf("%s is not supported for this resource", verb),
	}}
}
