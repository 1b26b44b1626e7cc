package sites

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Handler wires the site registry's JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/channels", h.channels)
	r.Post("/refresh", h.refresh)
	r.Post("/{id}/hide", h.hide)
	r.Post("/{id}/show", h.show)
	r.Post("/{id}/rename", h.rename)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		out []Site
		err error
	)
	if r.URL.Query().Get("all") == "true" {
		out, err = h.service.All(r.Context())
	} else {
		out, err = h.service.Visible(r.Context())
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) channels(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, h.service.Channels())
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Refresh(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"sites": count})
}

func (h *Handler) hide(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Hide(r.Context(), chi.URLParam(r, "id"), true); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"hidden": true})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Hide(r.Context(), chi.URLParam(r, "id"), false); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"hidden": false})
}

type renameRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.service.Rename(r.Context(), chi.URLParam(r, "id"), req.DisplayName); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"display_name": req.DisplayName})
}
