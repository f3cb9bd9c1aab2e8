// internal/speakers/handler.go
package speakers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

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

// Routes mounts the speaker directory endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/distance", h.handleDistance)
	r.Route("/speakers", func(r chi.Router) {
		r.Get("/", h.handleListSpeakers)
		r.Post("/", h.handleCreateSpeaker)
		r.Get("/directory", h.handleDirectory)
		r.Get("/{mnr}", h.handleGetSpeaker)
		r.Put("/{mnr}", h.handleUpdateSpeaker)
		r.Delete("/{mnr}", h.handleDeleteSpeaker)
		r.Post("/{mnr}/talks", h.handleAddTalk)
	})
	r.Put("/talks/{id}", h.handleUpdateTalk)
	r.Delete("/talks/{id}", h.handleDeleteTalk)
}

func (h *Handler) handleListSpeakers(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	speakers, err := h.service.ListSpeakers(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if speakers == nil {
		speakers = []*Speaker{}
	}
	writeJSON(w, http.StatusOK, speakers)
}

func (h *Handler) handleCreateSpeaker(w http.ResponseWriter, r *http.Request) {
	var req SpeakerRequest
	if err := security.DecodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sp, err := h.service.CreateSpeaker(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

func (h *Handler) handleGetSpeaker(w http.ResponseWriter, r *http.Request) {
	sp, err := h.service.GetSpeaker(r.Context(), chi.URLParam(r, "mnr"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (h *Handler) handleUpdateSpeaker(w http.ResponseWriter, r *http.Request) {
	var req SpeakerRequest
	if err := security.DecodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sp, err := h.service.UpdateSpeaker(r.Context(), chi.URLParam(r, "mnr"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (h *Handler) handleDeleteSpeaker(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSpeaker(r.Context(), chi.URLParam(r, "mnr")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddTalk(w http.ResponseWriter, r *http.Request) {
	var req TalkRequest
	if err := security.DecodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := h.service.AddTalk(r.Context(), chi.URLParam(r, "mnr"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleUpdateTalk(w http.ResponseWriter, r *http.Request) {
	id, ok := talkID(w, r)
	if !ok {
		return
	}
	var req TalkRequest
	if err := security.DecodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := h.service.UpdateTalk(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleDeleteTalk(w http.ResponseWriter, r *http.Request) {
	id, ok := talkID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTalk(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDistance(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))

	km, err := h.service.Distance(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "distance_km": km})
}

// handleDirectory renders the listing as an HTML page.
func (h *Handler) handleDirectory(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	speakers, err := h.service.ListSpeakers(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Referenten</title></head><body>\n")
	b.WriteString("<h1>Referenten</h1>\n")
	if len(speakers) == 0 {
		b.WriteString("<p>Keine Referenten gefunden.</p>\n")
	}
	for _, sp := range speakers {
		fmt.Fprintf(&b, "<section>\n<h2>%s %s</h2>\n", security.Escape(sp.FirstName), security.Escape(sp.LastName))
		if sp.PostalCode != "" || sp.City != "" {
			fmt.Fprintf(&b, "<p>%s %s", security.Escape(sp.PostalCode), security.Escape(sp.City))
			if sp.DistanceKM != nil {
				fmt.Fprintf(&b, " (%d km)", *sp.DistanceKM)
			}
			b.WriteString("</p>\n")
		}
		if len(sp.Talks) > 0 {
			b.WriteString("<ul>\n")
			for _, t := range sp.Talks {
				fmt.Fprintf(&b, "<li><strong>%s</strong>", security.Escape(t.Title))
				if t.Description != "" {
					fmt.Fprintf(&b, " %s", security.Escape(t.Description))
				}
				if webLink(t.VideoLink) {
					fmt.Fprintf(&b, " <a href=\"%s\">Video</a>", security.Escape(t.VideoLink))
				}
				b.WriteString("</li>\n")
			}
			b.WriteString("</ul>\n")
		}
		b.WriteString("</section>\n")
	}
	b.WriteString("</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

// webLink reports whether link may be rendered as an href. Rows written
// before http_url validation can still hold other schemes.
func webLink(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")
}

func listOptions(w http.ResponseWriter, r *http.Request) (ListOptions, bool) {
	q := r.URL.Query()
	opts := ListOptions{FromPostalCode: strings.TrimSpace(q.Get("from"))}
	if v := q.Get("max_distance"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "max_distance must be a non-negative integer")
			return ListOptions{}, false
		}
		opts.MaxDistance = n
	}
	return opts, true
}

func talkID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid talk ID")
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSpeakerNotFound), errors.Is(err, ErrTalkNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, security.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case database.IsDuplicate(err):
		writeJSONError(w, http.StatusConflict, "speaker already exists")
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
