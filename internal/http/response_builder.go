// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for fragment responses. The
// HX-Trigger header tells the page script which client-side effects to run.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HeaderTrigger carries client-side events as a JSON object.
const HeaderTrigger = "HX-Trigger"

// FragmentResponse provides a fluent API for building fragment responses.
type FragmentResponse struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewFragmentResponse creates a new response builder with default 200 status.
func NewFragmentResponse() *FragmentResponse {
	return &FragmentResponse{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *FragmentResponse) Status(code int) *FragmentResponse {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *FragmentResponse) Trigger(name string, data any) *FragmentResponse {
	b.triggers[name] = data
	return b
}

// TriggerRecordCreated adds the record:created trigger.
func (b *FragmentResponse) TriggerRecordCreated(id string) *FragmentResponse {
	return b.Trigger("record:created", map[string]string{"id": id})
}

// TriggerRecordDeleted adds the record:deleted trigger.
func (b *FragmentResponse) TriggerRecordDeleted(id string) *FragmentResponse {
	return b.Trigger("record:deleted", map[string]string{"id": id})
}

// TriggerFormReset clears the amount and note inputs of the entry form.
func (b *FragmentResponse) TriggerFormReset() *FragmentResponse {
	return b.Trigger("form:reset", struct{}{})
}

// Header adds a custom header to the response.
func (b *FragmentResponse) Header(name, value string) *FragmentResponse {
	b.headers[name] = value
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *FragmentResponse) BodyHTML(html string) *FragmentResponse {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *FragmentResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set(HeaderTrigger, string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// StatusFragment renders a status line for the entry form. The message is
// HTML-escaped; an empty message yields an empty body.
func StatusFragment(statusCode int, message string) *FragmentResponse {
	b := NewFragmentResponse().Status(statusCode)
	if message == "" {
		return b.BodyHTML("")
	}
	class := "message"
	if statusCode >= http.StatusBadRequest {
		class = "message error"
	}
	return b.BodyHTML(`<p class="` + class + `">` + template.HTMLEscapeString(message) + `</p>`)
}

// ErrorResponse creates a standard error response with HTML formatting.
func ErrorResponse(statusCode int, message string) *FragmentResponse {
	return StatusFragment(statusCode, message)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *FragmentResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnauthorizedError creates a 401 Unauthorized error response.
func UnauthorizedError(message string) *FragmentResponse {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *FragmentResponse {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *FragmentResponse {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *FragmentResponse {
	return NewFragmentResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowedMethods)
}
