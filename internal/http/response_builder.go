// Package http provides HTTP server and handler implementations.
//
// This file implements a small builder for JSON responses so every handler
// emits the same envelope and error shape.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. Encoding happens before the status line so
// a marshalling failure can still become a 500.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"error":"internal","detail":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// APIError is the body of every non-2xx JSON response.
type APIError struct {
	Error   string   `json:"error"`
	Detail  string   `json:"detail"`
	Missing []string `json:"missing_columns,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, kind, detail string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(APIError{Error: kind, Detail: detail})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(detail string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", detail)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(detail string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", detail)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(detail string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", detail)
}

// PayloadTooLargeError creates a 413 response.
func PayloadTooLargeError(detail string) *ResponseBuilder {
	return ErrorResponse(http.StatusRequestEntityTooLarge, "payload_too_large", detail)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later")
}

// TransactionDTO is the wire form of an enriched transaction. Amounts are
// JSON numbers carrying the exact decimal text.
type TransactionDTO struct {
	Date              core.Date   `json:"date"`
	Description       string      `json:"description"`
	Amount            json.Number `json:"amount"`
	TransactionType   string      `json:"transaction_type"`
	AccountName       string      `json:"account_name"`
	PredictedCategory string      `json:"predicted_category"`
	IsAnomaly         bool        `json:"is_anomaly"`
}

func toDTO(r core.EnrichedTransaction) TransactionDTO {
	return TransactionDTO{
		Date:              r.Date,
		Description:       r.Description,
		Amount:            number(r.Amount),
		TransactionType:   r.TransactionType,
		AccountName:       r.AccountName,
		PredictedCategory: r.PredictedCategory,
		IsAnomaly:         r.IsAnomaly,
	}
}

func toDTOs(records []core.EnrichedTransaction) []TransactionDTO {
	out := make([]TransactionDTO, len(records))
	for i, r := range records {
		out[i] = toDTO(r)
	}
	return out
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func numberMap(m map[string]decimal.Decimal) map[string]json.Number {
	out := make(map[string]json.Number, len(m))
	for k, v := range m {
		out[k] = number(v)
	}
	return out
}
