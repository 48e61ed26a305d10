package rest

import (
	"fmt"
	"net/http"
	"time"
)

// Envelope is the response body shape shared by every data endpoint.
type Envelope struct {
	Type       string      `json:"type"` // SINGLE, LIST, PAGED, or ACCEPTED
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

const (
	TypeSingle   = "SINGLE"
	TypeList     = "LIST"
	TypePaged    = "PAGED"
	TypeAccepted = "ACCEPTED"
)

// Pagination describes the page window attached to a PAGED envelope.
type Pagination struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// StatusError is a request-time failure carrying the HTTP status that
// matches the error taxonomy: 400 for bad parameters and pagination bounds,
// 404 for unknown names and empty single results, 500 for references that
// passed load-time validation but are missing at execution time.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

func badRequestf(format string, args ...any) *StatusError {
	return &StatusError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) *StatusError {
	return &StatusError{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func internalf(format string, args ...any) *StatusError {
	return &StatusError{Code: http.StatusInternalServerError, Message: fmt.Sprintf(format, args...)}
}

func unavailablef(format string, args ...any) *StatusError {
	return &StatusError{Code: http.StatusServiceUnavailable, Message: fmt.Sprintf(format, args...)}
}

func envelope(typ string, data any) *Envelope {
	return &Envelope{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}
