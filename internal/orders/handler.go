package orders

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Handler wires the order store's JSON endpoints.
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
	r.Get("/lookup/{ref}", h.lookup)
	r.Get("/lookup/{ref}/assets", h.orderAssets)
	r.Get("/partition/{site}/{day}", h.partition)
	r.Get("/undelivered", h.undelivered)
	r.Post("/undelivered/{identity}", h.markUndelivered)
	r.Delete("/undelivered/{identity}", h.clearUndelivered)
	r.Post("/daily/{channel}/{day}", h.recordDaily)
	r.Post("/assets/organize", h.organizeAssets)
}

// listedOrder is a SiteOrder annotated with the delivery flag.
type listedOrder struct {
	SiteOrder
	Undelivered bool `json:"undelivered,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var sites []string
	if raw := strings.TrimSpace(q.Get("sites")); raw != "" {
		sites = strings.Split(raw, ",")
	}
	rows, err := h.service.Range(r.Context(), sites, q.Get("from"), q.Get("to"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	flags, err := h.service.Undelivered(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]listedOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, listedOrder{SiteOrder: row, Undelivered: flags[row.Record.OrderIdentity]})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.FindByRef(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) orderAssets(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.OrderAssets(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, files)
}

// organizeAssets sweeps the day range and consolidates evidence folders left
// under volatile references onto each order's display code.
func (h *Handler) organizeAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var siteIDs []string
	if raw := strings.TrimSpace(q.Get("sites")); raw != "" {
		siteIDs = strings.Split(raw, ",")
	}
	organized, err := h.service.OrganizeAssets(r.Context(), siteIDs, q.Get("from"), q.Get("to"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"organized": organized})
}

func (h *Handler) partition(w http.ResponseWriter, r *http.Request) {
	part, err := h.service.Partition(r.Context(), chi.URLParam(r, "site"), chi.URLParam(r, "day"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, part)
}

func (h *Handler) undelivered(w http.ResponseWriter, r *http.Request) {
	flags, err := h.service.Undelivered(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]string, 0, len(flags))
	for id := range flags {
		out = append(out, id)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) markUndelivered(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkUndelivered(r.Context(), chi.URLParam(r, "identity")); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"undelivered": true})
}

func (h *Handler) clearUndelivered(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearUndelivered(r.Context(), chi.URLParam(r, "identity")); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"undelivered": false})
}

// recordDaily receives the raw daily-orders payload captured from the
// channel's web panel, stores the extracted rename map and applies it. The
// payload carries far more than the rename fields, so unknown keys pass.
func (h *Handler) recordDaily(w http.ResponseWriter, r *http.Request) {
	var payload RenamePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, shared.WrapValidation(err))
		return
	}
	applied, size, err := h.service.RecordDailyOrders(r.Context(),
		chi.URLParam(r, "channel"), chi.URLParam(r, "day"), payload)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"map_size": size, "applied": applied})
}
