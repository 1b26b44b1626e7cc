package appeals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// DefaultGracePeriod is how long a site has to contest a deduction before
// it becomes chargeable without a channel response.
const DefaultGracePeriod = 5 * 24 * time.Hour

// DBRepository defines the persistence behaviour the ledger needs. Mutate
// must run fn as one read-modify-write transaction on the code's row.
type DBRepository interface {
	Get(ctx context.Context, code string) (Appeal, error)
	Mutate(ctx context.Context, code string, fn func(*Appeal) error) error
	MutateOrCreate(ctx context.Context, code string, fn func(a *Appeal, created bool) error) error
	List(ctx context.Context, filter Filter) ([]Appeal, error)
}

// Notifier receives fire-and-forget ledger transition events. Implementations
// must never block the calling operation.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// Event describes one ledger state transition for downstream listeners.
type Event struct {
	Type   string  `json:"type"`
	Code   string  `json:"code"`
	Site   string  `json:"site,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

// Event types published on ledger transitions.
const (
	EventMarked       = "appeal.marked"
	EventResponded    = "appeal.responded"
	EventRefunded     = "appeal.refund_received"
	EventDeclined     = "appeal.site_declined"
	EventDebitPlanned = "appeal.debit_scheduled"
	EventDebitDone    = "appeal.debit_executed"
	EventAbsorbed     = "appeal.loss_absorbed"
)

// Filter narrows ledger listings.
type Filter struct {
	Site string
	From string
	To   string
}

// Config carries the ledger's tunables.
type Config struct {
	GracePeriod time.Duration
}

// Service drives the appeals ledger state machine.
type Service struct {
	repo     DBRepository
	notifier Notifier
	logger   *slog.Logger
	grace    time.Duration
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo DBRepository, notifier Notifier, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, grace: grace, now: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func (s *Service) publish(ctx context.Context, event Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, event)
}

// MarkForAppeal creates the record, or re-marks an unresolved one updating
// amount, channel and the marking timestamp that anchors the grace period.
func (s *Service) MarkForAppeal(ctx context.Context, code, channel, site, day string, withheld float64, orderIdentity string) (Appeal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Appeal{}, fmt.Errorf("%w: code is required", shared.ErrValidation)
	}
	if withheld <= 0 {
		return Appeal{}, fmt.Errorf("%w: withheld amount must be positive", shared.ErrInvalidAmount)
	}
	var out Appeal
	err := s.repo.MutateOrCreate(ctx, code, func(a *Appeal, created bool) error {
		if !created && a.Resolved() {
			return fmt.Errorf("%w: appeal %s already resolved", shared.ErrInvalidState, code)
		}
		a.Code = code
		a.Channel = strings.TrimSpace(channel)
		a.Site = strings.TrimSpace(site)
		a.Day = strings.TrimSpace(day)
		if orderIdentity != "" {
			a.OrderIdentity = orderIdentity
		}
		a.AmountWithheld = withheld
		a.MarkedAt = s.now()
		out = *a
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}
	s.publish(ctx, Event{Type: EventMarked, Code: code, Site: out.Site, Amount: withheld})
	return out, nil
}

// RecordResponse registers the channel's answer to the appeal.
func (s *Service) RecordResponse(ctx context.Context, code string, promised float64, estimatedRefundDate string) (Appeal, error) {
	if promised < 0 {
		return Appeal{}, fmt.Errorf("%w: promised amount cannot be negative", shared.ErrInvalidAmount)
	}
	var out Appeal
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		if a.AmountPromisedBack != nil {
			return fmt.Errorf("%w: appeal %s already has a response", shared.ErrInvalidState, code)
		}
		if a.SiteDeclined {
			return fmt.Errorf("%w: site declined to appeal %s", shared.ErrInvalidState, code)
		}
		a.AmountPromisedBack = &promised
		a.EstimatedRefundDate = strings.TrimSpace(estimatedRefundDate)
		now := s.now()
		a.RespondedAt = &now
		out = *a
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}
	s.publish(ctx, Event{Type: EventResponded, Code: code, Site: out.Site, Amount: promised})
	return out, nil
}

// RegisterRefund appends a refund installment. fillRemaining computes
// whatever the channel still owes against the promise.
func (s *Service) RegisterRefund(ctx context.Context, code string, amount float64, fillRemaining bool, date string) (Appeal, error) {
	var (
		out     Appeal
		applied float64
	)
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		if a.AmountPromisedBack == nil {
			return fmt.Errorf("%w: appeal %s has no promised amount", shared.ErrInvalidState, code)
		}
		remaining := *a.AmountPromisedBack - a.TotalRefunded()
		if fillRemaining {
			amount = remaining
		}
		if amount <= 0 {
			return fmt.Errorf("%w: refund contribution must be positive", shared.ErrInvalidAmount)
		}
		if amount > remaining+AmountTolerance {
			return fmt.Errorf("%w: refund exceeds promised amount by %.2f", shared.ErrInvalidAmount, amount-remaining)
		}
		if date == "" {
			date = s.now().Format(shared.DayFormat)
		}
		a.Refunds = append(a.Refunds, RefundEvent{Amount: amount, Date: date})
		applied = amount
		out = *a
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}
	s.publish(ctx, Event{Type: EventRefunded, Code: code, Site: out.Site, Amount: applied})
	return out, nil
}

// DeclineAppeal records the site's decision not to contest the deduction,
// which moves the record straight into debit collection.
func (s *Service) DeclineAppeal(ctx context.Context, code string) (Appeal, error) {
	var out Appeal
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		if a.AmountPromisedBack != nil {
			return fmt.Errorf("%w: appeal %s was already appealed", shared.ErrInvalidState, code)
		}
		a.SiteDeclined = true
		out = *a
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}
	s.publish(ctx, Event{Type: EventDeclined, Code: code, Site: out.Site})
	return out, nil
}

// ScheduleDebit appends a planned payroll withholding for the site.
func (s *Service) ScheduleDebit(ctx context.Context, code string, amount float64, period, date string) (DebitEvent, error) {
	if amount <= 0 {
		return DebitEvent{}, fmt.Errorf("%w: debit amount must be positive", shared.ErrInvalidAmount)
	}
	if period == "" {
		period = shared.CurrentPayrollPeriod(s.now())
	}
	if err := shared.ValidatePayrollPeriod(period); err != nil {
		return DebitEvent{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	var (
		event DebitEvent
		site  string
	)
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		loss := a.OutstandingLoss()
		if loss <= AmountTolerance {
			return fmt.Errorf("%w: appeal %s", shared.ErrNoLoss, code)
		}
		if !a.DebitEligible(s.now(), s.grace) {
			return fmt.Errorf("%w: appeal %s is still within the grace period", shared.ErrInvalidState, code)
		}
		covered := a.TotalDebits(false) + a.CompanyAbsorbed
		if covered+amount > loss+AmountTolerance {
			return fmt.Errorf("%w: debit would exceed outstanding loss (%.2f uncovered)", shared.ErrInvalidAmount, loss-covered)
		}
		if date == "" {
			date = s.now().Format(shared.DayFormat)
		}
		event = DebitEvent{ID: uuid.NewString(), Amount: amount, Period: period, Date: date}
		a.Debits = append(a.Debits, event)
		site = a.Site
		return nil
	})
	if err != nil {
		return DebitEvent{}, err
	}
	s.publish(ctx, Event{Type: EventDebitPlanned, Code: code, Site: site, Amount: amount})
	return event, nil
}

// ExecuteDebit marks a scheduled debit as actually withheld.
func (s *Service) ExecuteDebit(ctx context.Context, code, debitID string) (Appeal, error) {
	var (
		out    Appeal
		amount float64
	)
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		for i := range a.Debits {
			if a.Debits[i].ID == debitID {
				a.Debits[i].Executed = true
				amount = a.Debits[i].Amount
				out = *a
				return nil
			}
		}
		return fmt.Errorf("%w: debit event %s on appeal %s", shared.ErrNotFound, debitID, code)
	})
	if err != nil {
		return Appeal{}, err
	}
	s.publish(ctx, Event{Type: EventDebitDone, Code: code, Site: out.Site, Amount: amount})
	return out, nil
}

// AbsorbLoss writes part of the loss off against the company instead of the
// site. Zero means absorb whatever is still uncovered; any amount is capped
// so total coverage never exceeds the outstanding loss.
func (s *Service) AbsorbLoss(ctx context.Context, code string, amount float64) (Appeal, error) {
	if amount < 0 {
		return Appeal{}, fmt.Errorf("%w: absorption cannot be negative", shared.ErrInvalidAmount)
	}
	var (
		out     Appeal
		applied float64
	)
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		remainder := a.OutstandingLoss() - a.TotalDebits(false) - a.CompanyAbsorbed
		if remainder <= AmountTolerance {
			return fmt.Errorf("%w: appeal %s is fully covered", shared.ErrNoRemainder, code)
		}
		applied = amount
		if applied == 0 || applied > remainder {
			applied = remainder
		}
		a.CompanyAbsorbed += applied
		out = *a
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}
	s.publish(ctx, Event{Type: EventAbsorbed, Code: code, Site: out.Site, Amount: applied})
	return out, nil
}

// UndoAbsorption resets the company write-off to zero, the manual correction
// path; derived coverage recomputes on the next read.
func (s *Service) UndoAbsorption(ctx context.Context, code string) (Appeal, error) {
	var out Appeal
	err := s.repo.Mutate(ctx, code, func(a *Appeal) error {
		a.CompanyAbsorbed = 0
		out = *a
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}
	return out, nil
}

// Get returns the raw ledger record.
func (s *Service) Get(ctx context.Context, code string) (Appeal, error) {
	return s.repo.Get(ctx, code)
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Appeal, error) {
	return s.repo.List(ctx, filter)
}

// ListPendingResponse returns marked records still waiting on the channel:
// no response yet, site has not declined, nothing covered.
func (s *Service) ListPendingResponse(ctx context.Context, filter Filter) ([]Appeal, error) {
	all, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []Appeal
	for _, a := range all {
		if a.AmountPromisedBack == nil && !a.SiteDeclined && !a.Resolved() {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListRefundsPending returns appealed records the channel has not fully
// repaid yet.
func (s *Service) ListRefundsPending(ctx context.Context, filter Filter) ([]Appeal, error) {
	all, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []Appeal
	for _, a := range all {
		if p := a.AmountPromisedBack; p != nil && a.TotalRefunded() < *p-AmountTolerance {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListDebitEligible returns records with uncovered loss that passed the
// collection gate, ready for payroll scheduling.
func (s *Service) ListDebitEligible(ctx context.Context, filter Filter) ([]Appeal, error) {
	all, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []Appeal
	for _, a := range all {
		if a.OutstandingLoss() <= AmountTolerance {
			continue
		}
		if a.SiteOwedToSchedule() <= AmountTolerance {
			continue
		}
		if !a.DebitEligible(now, s.grace) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
