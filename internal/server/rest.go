package server

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/famshelf/internal/groupcode"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/mutation"
	"github.com/roach88/famshelf/internal/protocol"
)

// memberHeader carries the acting member's id on REST mutations.
const memberHeader = "X-Member-Id"

const maxBodyBytes = 64 << 10

type groupResponse struct {
	GroupID string `json:"groupId"`
}

type itemsResponse struct {
	GroupID string           `json:"groupId"`
	Items   []inventory.Item `json:"items"`
}

// addRequest is the body of POST /items. Resolution and ExistingID answer a
// previous 409.
type addRequest struct {
	Item       inventory.Item `json:"item"`
	Resolution string         `json:"resolution,omitempty"`
	ExistingID string         `json:"existingId,omitempty"`
}

type addResponse struct {
	Item      *inventory.Item          `json:"item,omitempty"`
	Duplicate *protocol.DuplicateFound `json:"duplicate,omitempty"`
	Skipped   bool                     `json:"skipped,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Groups      int    `json:"groups"`
	Connections int    `json:"connections"`
}

func origin(r *http.Request) mutation.Origin {
	return mutation.Origin{MemberID: strings.TrimSpace(r.Header.Get(memberHeader))}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "store unavailable"})
		return
	}
	reg := s.hub.Registry()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Groups:      reg.Groups(),
		Connections: reg.Connections(),
	})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	code, err := groupcode.Issue(r.Context(), s.store, rand.Reader, groupcode.DefaultAttempts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("group created", "group", code)
	writeJSON(w, http.StatusCreated, groupResponse{GroupID: code})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	code, err := s.resolveGroup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.handler.ListItems(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{GroupID: code, Items: items})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	code, err := s.resolveGroup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req addRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: badRequest("body", "invalid JSON body")})
		return
	}

	var (
		res        mutation.AddResult
		resolution inventory.Resolution
	)
	if req.Resolution != "" {
		resolution, err = inventory.ParseResolution(req.Resolution)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err = s.handler.ResolveDuplicate(r.Context(), code, req.ExistingID, req.Item, resolution, origin(r))
	} else {
		res, err = s.handler.AddItem(r.Context(), code, req.Item, origin(r))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch {
	case res.Duplicate != nil:
		writeJSON(w, http.StatusConflict, addResponse{Duplicate: &protocol.DuplicateFound{
			Existing:  res.Duplicate.Existing,
			Candidate: res.Duplicate.Candidate,
		}})
	case res.Skipped:
		writeJSON(w, http.StatusOK, addResponse{Skipped: true})
	case resolution == inventory.ResolveMerge:
		writeJSON(w, http.StatusOK, addResponse{Item: res.Item})
	default:
		writeJSON(w, http.StatusCreated, addResponse{Item: res.Item})
	}
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	code, err := s.resolveGroup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var patch inventory.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: badRequest("body", "invalid JSON body")})
		return
	}
	item, err := s.handler.UpdateItem(r.Context(), code, chi.URLParam(r, "id"), patch, origin(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	code, err := s.resolveGroup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.handler.DeleteItem(r.Context(), code, chi.URLParam(r, "id"), origin(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	code, err := s.resolveGroup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.members(code))
}

func (s *Server) members(code string) protocol.Members {
	members := s.hub.Members(code)
	return protocol.Members{GroupID: code, Members: members, Count: len(members)}
}
