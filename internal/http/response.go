package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetdash/internal/core"
	"budgetdash/internal/log"
	"budgetdash/internal/middleware/trace"
	"budgetdash/internal/services"
	"budgetdash/internal/store"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// OK is shorthand for a 200 response carrying v.
func OK(v any) *ResponseBuilder {
	return NewResponse().JSON(v)
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response. Error bodies carry the request ID.
func (b *ResponseBuilder) Write(w http.ResponseWriter, r *http.Request) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if e, ok := b.payload.(*errorBody); ok && r != nil {
		e.RequestID = trace.RequestID(r)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(&errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func TooManyRequestsError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message).Header("Retry-After", "60")
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMonthNotFound),
		errors.Is(err, core.ErrTransactionNotFound),
		errors.Is(err, core.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCategoryExists),
		errors.Is(err, store.ErrProtectedCategory):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrInvalidRule),
		errors.Is(err, core.ErrUnrecognizedSchema),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrZeroAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrResetRequired):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes the mapped error response. Internal errors are
// not echoed to the client.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		events(r).Failed(r.Context(), "Request failed", err, op, nil)
		msg = "internal error"
	} else {
		log.FromContext(r.Context()).InfoContext(r.Context(), "Request rejected", "operation", op, "status_code", status, "error", err)
	}
	ErrorResponse(status, msg).Write(w, r)
}

// events returns the request-scoped structured logger.
func events(r *http.Request) *log.Events {
	return log.NewEvents(log.FromContext(r.Context()))
}
