package musicapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a client-visible failure.
type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindUnauthorized      ErrorKind = "UnauthorizedError"
	KindNotFound          ErrorKind = "NotFoundError"
	KindRateLimitExceeded ErrorKind = "RateLimitExceeded"
	KindUpstream          ErrorKind = "UpstreamServiceError"
	KindUnhandled         ErrorKind = "UnhandledError"
)

const (
	messageUnhandled   = "An unhandled error occurred"
	messageRateLimited = "Please try again later"
	messageNoRoute     = "Route not found"
	messageNoMethod    = "Method not allowed"
)

// AppError is a handled failure that carries its own status and client-safe message.
//
// Cause is logged but never serialized.
type AppError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Cause   error
	Headers map[string]string
}

func (e *AppError) Error() string {
	if e == nil {
		return "app error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WithHeader attaches a response header to the error response.
func (e *AppError) WithHeader(key, value string) *AppError {
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	e.Headers[key] = value
	return e
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

// NewUpstreamError reports a failed dependency. Status defaults to 500.
func NewUpstreamError(status int, message string, cause error) *AppError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &AppError{Kind: KindUpstream, Status: status, Message: message, Cause: cause}
}

// ErrorBody is the JSON envelope for every failed response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorLabel(status int) string {
	if status >= 500 {
		return http.StatusText(http.StatusInternalServerError)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Error"
}

func errorResponse(status int, message string) Response {
	body, err := json.Marshal(ErrorBody{Error: errorLabel(status), Message: message})
	if err != nil {
		body = []byte(`{"error":"Internal Server Error","message":"An unhandled error occurred"}`)
	}
	return Response{
		Status:  status,
		Headers: map[string][]string{"content-type": {contentTypeJSON}},
		Body:    body,
	}
}

func unhandledResponse() Response {
	return errorResponse(http.StatusInternalServerError, messageUnhandled)
}

func appErrorResponse(appErr *AppError) Response {
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp := errorResponse(status, appErr.Message)
	for k, v := range appErr.Headers {
		resp.Headers[k] = []string{v}
	}
	return resp
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}
