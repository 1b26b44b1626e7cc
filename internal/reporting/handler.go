package reporting

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/andres-saa/restaurant-reports/internal/reporting/svg"
	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Handler wires the report endpoints.
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
	r.Get("/summary", h.summary)
	r.Get("/summary/chart", h.summaryChart)
	r.Get("/master", h.master)
}

func queryFromRequest(r *http.Request) (Query, error) {
	q := r.URL.Query()
	out := Query{From: q.Get("from"), To: q.Get("to")}
	if raw := strings.TrimSpace(q.Get("sites")); raw != "" {
		out.Sites = strings.Split(raw, ",")
	}
	if out.From == "" || out.To == "" {
		return Query{}, fmt.Errorf("%w: from and to are required", shared.ErrValidation)
	}
	return out, nil
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out, err := h.service.Summarize(r.Context(), q)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) summaryChart(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sum, err := h.service.Summarize(r.Context(), q)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	byDay := make(map[string]float64, len(sum.ByDay))
	for day, count := range sum.ByDay {
		byDay[day] = float64(count)
	}
	if len(byDay) == 0 {
		shared.WriteError(w, fmt.Errorf("%w: no orders in window", shared.ErrNotFound))
		return
	}
	markup, err := svg.DailyBars(0, 0, byDay, svg.Opts{Title: "Orders per day"})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write([]byte(markup))
}

func (h *Handler) master(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	mq := MasterQuery{
		Query:  q,
		Search: r.URL.Query().Get("search"),
	}
	mq.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	mq.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	out, err := h.service.Master(r.Context(), mq)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
