package restapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dreamware/clusterstate/internal/master"
)

// Kind is the stable error code of an API error, rendered as "error-code".
type Kind string

const (
	KindOtherMaster                  Kind = "OtherMaster"
	KindUnknownMaster                Kind = "UnknownMaster"
	KindDeadlineExceeded             Kind = "DeadlineExceeded"
	KindInvalidOptionValue           Kind = "InvalidOptionValue"
	KindInvalidContent               Kind = "InvalidContent"
	KindMissingUnit                  Kind = "MissingUnit"
	KindOperationNotSupportedForUnit Kind = "OperationNotSupportedForUnit"
	KindInternal                     Kind = "InternalServerError"
)

// Defaults merged into an *Error that does not carry its own status or
// reason.
const (
	DefaultStatus = http.StatusInternalServerError
	DefaultReason = "Failed to process request"
)

// Error is an API failure with its HTTP mapping. Zero Status and empty
// Reason fall back to DefaultStatus and DefaultReason.
type Error struct {
	Kind    Kind
	Status  int
	Reason  string
	Message string
	// Location is sent with redirects.
	Location string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.reason()
}

func (e *Error) status() int {
	if e.Status == 0 {
		return DefaultStatus
	}
	return e.Status
}

func (e *Error) reason() string {
	if e.Reason == "" {
		return DefaultReason
	}
	return e.Reason
}

func (e *Error) code() string {
	if e.Kind == "" {
		return e.reason()
	}
	return string(e.Kind)
}

func invalidOption(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidOptionValue, Status: http.StatusBadRequest, Reason: "Invalid option value", Message: fmt.Sprintf(format, args...)}
}

func invalidContent(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidContent, Status: http.StatusBadRequest, Reason: "Invalid content", Message: fmt.Sprintf(format, args...)}
}

func missingUnit(path []string, format string, args ...any) *Error {
	return &Error{Kind: KindMissingUnit, Status: http.StatusNotFound, Reason: "No such resource", Message: fmt.Sprintf("%s: %s", unitLink(path), fmt.Sprintf(format, args...))}
}

func notSupported(path []string, format string, args ...any) *Error {
	return &Error{Kind: KindOperationNotSupportedForUnit, Status: http.StatusMethodNotAllowed, Reason: "Operation not supported for resource", Message: fmt.Sprintf("%s: %s", unitLink(path), fmt.Sprintf(format, args...))}
}

func deadlineExceeded(format string, args ...any) *Error {
	return &Error{Kind: KindDeadlineExceeded, Status: http.StatusGatewayTimeout, Reason: "Gateway Timeout", Message: fmt.Sprintf(format, args...)}
}

// errorBody is the JSON document of every error response.
type errorBody struct {
	Code    string `json:"error-code"`
	Message string `json:"message"`
}

// toAPIError resolves any error returned by the service into the single
// *Error rendered to the client. Master errors become redirects or
// unavailable answers; the location of a redirect is built by locate.
func toAPIError(err error, locate func(host string, port int) string) *Error {
	var other *master.OtherMasterError
	var apiErr *Error
	switch {
	case errors.As(err, &other):
		return &Error{
			Kind:     KindOtherMaster,
			Status:   http.StatusTemporaryRedirect,
			Reason:   "Temporary Redirect",
			Message:  err.Error(),
			Location: locate(other.Host, other.Port),
		}
	case errors.Is(err, master.ErrUnknownMaster):
		return &Error{Kind: KindUnknownMaster, Status: http.StatusServiceUnavailable, Reason: "Service Unavailable", Message: err.Error()}
	case errors.As(err, &apiErr):
		merged := *apiErr
		merged.Status = apiErr.status()
		merged.Reason = apiErr.reason()
		return &merged
	default:
		return &Error{
			Kind:    KindInternal,
			Status:  DefaultStatus,
			Reason:  DefaultReason,
			Message: fmt.Sprintf("%T: %s", err, err.Error()),
		}
	}
}
