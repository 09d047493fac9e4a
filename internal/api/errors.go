package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/store"
)

// APIError is the JSON body of every error response.
type APIError struct { //nolint:revive // exported name matches the OpenAPI schema
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Per-field problems for invalid requests"`
}

func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

// ContentType implements huma.ContentTypeFilter.
func (e *APIError) ContentType(_ string) string { return "application/json" }

// statusCodes gives the error code for statuses that no domain error
// produced, such as huma's own request validation.
var statusCodes = map[int]domainerrors.Code{
	http.StatusBadRequest:          domainerrors.CodeValidation,
	http.StatusUnprocessableEntity: domainerrors.CodeValidation,
	http.StatusNotFound:            domainerrors.CodeNotFound,
	http.StatusConflict:            domainerrors.CodeConflict,
}

func statusToCode(status int) string {
	if code, ok := statusCodes[status]; ok {
		return string(code)
	}
	return string(domainerrors.CodeInternal)
}

// RegisterErrorHandler makes huma render every error as an APIError.
// Domain and store errors keep their own status; anything else uses the
// status huma chose. Call it before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		if apiErr, ok := fromError(err); ok {
			return apiErr
		}
	}

	apiErr := &APIError{status: status, Code: statusToCode(status), Message: message}
	if status >= http.StatusInternalServerError {
		return apiErr
	}

	var details []string
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	if len(details) > 0 {
		apiErr.Details = details
	}
	return apiErr
}

func fromError(err error) (*APIError, bool) {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return &APIError{
			status:  domainErr.HTTPStatus(),
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, true
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return &APIError{
			status:  storeErr.HTTPCode(),
			Code:    statusToCode(storeErr.HTTPCode()),
			Message: storeErr.Error(),
		}, true
	}
	return nil, false
}
