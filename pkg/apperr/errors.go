package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrTransient             = errors.New("transient service error")
	ErrRejected              = errors.New("upstream rejected request")
	ErrAssetProcessingFailed = errors.New("asset processing failed")
	ErrMalformedModelOutput  = errors.New("malformed model output")
	ErrTimeout               = errors.New("timed out waiting for remote job")
)

// Error carries one of the sentinel kinds above together with the operation
// that failed and the underlying cause. errors.Is matches both.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...interface{}) error {
	return New(ErrValidation, op, fmt.Errorf(format, args...))
}

func Transient(op string, err error) error {
	if errors.Is(err, ErrTransient) {
		return err
	}
	return New(ErrTransient, op, err)
}

func AssetFailed(op, format string, args ...interface{}) error {
	return New(ErrAssetProcessingFailed, op, fmt.Errorf(format, args...))
}

func Malformed(op string, raw string) error {
	const maxRaw = 1200
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return New(ErrMalformedModelOutput, op, fmt.Errorf("no JSON object found in output: %q", raw))
}

func Timeout(op, format string, args ...interface{}) error {
	return New(ErrTimeout, op, fmt.Errorf(format, args...))
}

// FromStatus classifies a non-2xx upstream response.
func FromStatus(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	cause := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return New(ErrTransient, op, cause)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return New(ErrValidation, op, cause)
	default:
		return New(ErrRejected, op, cause)
	}
}

// IsRetryable reports whether err is worth another attempt. Anything not
// explicitly classified as permanent is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrRejected),
		errors.Is(err, ErrAssetProcessingFailed),
		errors.Is(err, ErrMalformedModelOutput),
		errors.Is(err, ErrTimeout):
		return false
	}
	return true
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAssetProcessingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrTransient), errors.Is(err, ErrRejected), errors.Is(err, ErrMalformedModelOutput):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
