// internal/membership/handler.go
package membership

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"memberportal/internal/database"
	"memberportal/internal/security"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the member endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.handleListMembers)
		r.Post("/", h.handleRegisterMember)
		r.Get("/by-number/{mnr}", h.handleGetMemberByNumber)
		r.Get("/{id}", h.handleGetMember)
		r.Put("/{id}", h.handleUpdateMember)
		r.Delete("/{id}", h.handleDeleteMember)
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := security.DecodeJSON(r.Body, &req, "password"); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, ok, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		log.Info().Str("client_ip", security.ClientIP(r)).Msg("login failed")
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	log.Info().Int64("member_id", member.ID).Str("client_ip", security.ClientIP(r)).Msg("login succeeded")
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := security.DecodeJSON(r.Body, &req, "password"); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) handleGetMemberByNumber(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.GetMemberByNumber(r.Context(), chi.URLParam(r, "mnr"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := security.DecodeJSON(r.Body, &req, "password"); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.service.UpdateMember(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid member ID")
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, security.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRateLimited):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case database.IsDuplicate(err):
		writeJSONError(w, http.StatusConflict, "member already exists")
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
