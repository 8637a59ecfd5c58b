// internal/member/handler.go
package member

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// response is the envelope every API endpoint produces.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the member API. A non-matching method on any route yields a
// 405 with the standard envelope.
func (h *Handler) Routes(r chi.Router) {
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, response{Success: false, Message: "method not allowed"})
	})

	r.Get("/api/members", h.handleListMembers)
	r.Get("/api/member/{phone}", h.handleLookup)
	r.Post("/api/member", h.handleUpsertMember)
	r.Delete("/api/member/{id}", h.handleDeleteMember)
	r.Post("/api/member/{id}/benefits", h.handleUpdateBenefits)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: members})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	m, err := h.service.FindByPhone(r.Context(), phone)
	if err != nil {
		h.fail(w, r, err, "no member found for this phone number")
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: m})
}

func (h *Handler) handleUpsertMember(w http.ResponseWriter, r *http.Request) {
	var input UpsertInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid request body"})
		return
	}

	if input.Nickname == "" {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "nickname is required"})
		return
	}
	if len(input.Phones) == 0 {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "at least one phone number is required"})
		return
	}
	for _, p := range input.Phones {
		if !ValidPhone(p) {
			writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid phone number"})
			return
		}
	}

	created := input.ID == 0
	m, err := h.service.UpsertMember(r.Context(), input)
	if err != nil {
		h.fail(w, r, err, "member not found")
		return
	}

	if created {
		writeJSON(w, http.StatusOK, response{Success: true, Message: "member created", Data: m})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "member updated"})
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid member id"})
		return
	}

	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		h.fail(w, r, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "member deleted"})
}

func (h *Handler) handleUpdateBenefits(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid member id"})
		return
	}

	var req struct {
		Benefits []Entitlement `json:"benefits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid request body"})
		return
	}

	if err := h.service.UpdateBenefits(r.Context(), id, req.Benefits); err != nil {
		h.fail(w, r, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "benefits updated"})
}

// fail maps service errors onto the response envelope. Not-found is an
// ordinary success:false result; everything else is a generic server error
// with detail kept in the server log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, ErrMemberNotFound):
		writeJSON(w, http.StatusOK, response{Success: false, Message: notFoundMessage})
	case errors.Is(err, ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, response{Success: false, Message: "too many requests"})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: "server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
