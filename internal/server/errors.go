package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/famshelf/internal/dispatch"
	"github.com/roach88/famshelf/internal/groupcode"
	"github.com/roach88/famshelf/internal/hub"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

// errorBody is the JSON shape of every REST error.
type errorBody struct {
	Error protocol.Error `json:"error"`
}

// classify maps an error to an HTTP status and its wire form.
// Store and internal failures never expose their cause.
func classify(err error) (int, protocol.Error) {
	var ierr *inventory.Error
	switch {
	case errors.As(err, &ierr) && ierr.Code == inventory.ErrCodeValidation:
		return http.StatusBadRequest, protocol.Error{Code: string(ierr.Code), Message: ierr.Message, Field: ierr.Field}
	case inventory.IsNotFound(err):
		return http.StatusNotFound, protocol.Error{Code: string(inventory.ErrCodeNotFound), Message: "item not found"}
	case inventory.IsStoreError(err):
		return http.StatusInternalServerError, protocol.Error{Code: string(inventory.ErrCodeStore), Message: "the store did not confirm the change"}
	case errors.Is(err, groupcode.ErrInvalid):
		return http.StatusBadRequest, protocol.Error{Code: protocol.ErrCodeBadRequest, Message: "group code must be 8 letters or digits", Field: "groupId"}
	case errors.Is(err, errGroupNotFound):
		return http.StatusNotFound, protocol.Error{Code: protocol.ErrCodeGroupNotFound, Message: "no such group"}
	case errors.Is(err, hub.ErrAlreadyJoined):
		return http.StatusConflict, protocol.Error{Code: protocol.ErrCodeAlreadyJoined, Message: "connection already joined a group"}
	case errors.Is(err, hub.ErrInvalidJoin):
		return http.StatusBadRequest, protocol.Error{Code: protocol.ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, hub.ErrClosed), errors.Is(err, dispatch.ErrStopped),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, protocol.Error{Code: protocol.ErrCodeUnavailable, Message: "server is shutting down"}
	default:
		return http.StatusInternalServerError, protocol.Error{Code: protocol.ErrCodeInternal, Message: "internal error"}
	}
}

func badRequest(field, message string) protocol.Error {
	return protocol.Error{Code: protocol.ErrCodeBadRequest, Message: message, Field: field}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: body})
}
