package appeals

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// Handler wires the ledger's JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/pending-response", h.listPendingResponse)
	r.Get("/pending-refund", h.listPendingRefund)
	r.Get("/debit-eligible", h.listDebitEligible)
	r.Get("/{code}", h.show)
	r.Post("/{code}/mark", h.mark)
	r.Post("/{code}/response", h.respond)
	r.Post("/{code}/refunds", h.refund)
	r.Post("/{code}/decline", h.decline)
	r.Post("/{code}/debits", h.scheduleDebit)
	r.Post("/{code}/debits/{debitID}/execute", h.executeDebit)
	r.Post("/{code}/absorb", h.absorb)
	r.Post("/{code}/absorb/undo", h.undoAbsorb)
}

// appealView is the read shape: raw record plus derived states.
type appealView struct {
	Appeal
	States          []State `json:"states"`
	OutstandingLoss float64 `json:"outstanding_loss"`
	TotalRefunded   float64 `json:"total_refunded"`
	SiteOwed        float64 `json:"site_owed"`
}

func viewOf(a Appeal) appealView {
	return appealView{
		Appeal:          a,
		States:          DeriveStates(a),
		OutstandingLoss: a.OutstandingLoss(),
		TotalRefunded:   a.TotalRefunded(),
		SiteOwed:        a.SiteOwedToExecute(),
	}
}

func viewsOf(list []Appeal) []appealView {
	out := make([]appealView, 0, len(list))
	for _, a := range list {
		out = append(out, viewOf(a))
	}
	return out
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{Site: q.Get("site"), From: q.Get("from"), To: q.Get("to")}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewsOf(out))
}

func (h *Handler) listPendingResponse(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListPendingResponse(r.Context(), filterFromQuery(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewsOf(out))
}

func (h *Handler) listPendingRefund(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListRefundsPending(r.Context(), filterFromQuery(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewsOf(out))
}

func (h *Handler) listDebitEligible(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListDebitEligible(r.Context(), filterFromQuery(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewsOf(out))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

type markRequest struct {
	Channel       string  `json:"channel" validate:"required"`
	Site          string  `json:"site" validate:"required"`
	Day           string  `json:"day" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	OrderIdentity string  `json:"order_identity"`
}

func (h *Handler) mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := h.decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	a, err := h.service.MarkForAppeal(r.Context(), chi.URLParam(r, "code"),
		req.Channel, req.Site, req.Day, req.Amount, req.OrderIdentity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

type responseRequest struct {
	Promised            float64 `json:"promised" validate:"gte=0"`
	EstimatedRefundDate string  `json:"estimated_refund_date"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if err := h.decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	a, err := h.service.RecordResponse(r.Context(), chi.URLParam(r, "code"),
		req.Promised, req.EstimatedRefundDate)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

type refundRequest struct {
	Amount        float64 `json:"amount"`
	FillRemaining bool    `json:"fill_remaining"`
	Date          string  `json:"date"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := h.decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	a, err := h.service.RegisterRefund(r.Context(), chi.URLParam(r, "code"),
		req.Amount, req.FillRemaining, req.Date)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

func (h *Handler) decline(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.DeclineAppeal(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

type debitRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Period string  `json:"period"`
	Date   string  `json:"date"`
}

func (h *Handler) scheduleDebit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := h.decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	event, err := h.service.ScheduleDebit(r.Context(), chi.URLParam(r, "code"),
		req.Amount, req.Period, req.Date)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, event)
}

func (h *Handler) executeDebit(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.ExecuteDebit(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "debitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

type absorbRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
}

func (h *Handler) absorb(w http.ResponseWriter, r *http.Request) {
	var req absorbRequest
	if err := h.decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	a, err := h.service.AbsorbLoss(r.Context(), chi.URLParam(r, "code"), req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

func (h *Handler) undoAbsorb(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.UndoAbsorption(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, viewOf(a))
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := shared.DecodeJSON(r, dst); err != nil {
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		return shared.WrapValidation(err)
	}
	return nil
}
