package appeals

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// memLedger is an in-memory DBRepository for service tests.
type memLedger struct {
	records map[string]Appeal
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]Appeal)}
}

func (m *memLedger) Get(_ context.Context, code string) (Appeal, error) {
	a, ok := m.records[code]
	if !ok {
		return Appeal{}, fmt.Errorf("%w: appeal %s", shared.ErrNotFound, code)
	}
	return a, nil
}

func (m *memLedger) Mutate(_ context.Context, code string, fn func(*Appeal) error) error {
	a, ok := m.records[code]
	if !ok {
		return fmt.Errorf("%w: appeal %s", shared.ErrNotFound, code)
	}
	if err := fn(&a); err != nil {
		return err
	}
	m.records[code] = a
	return nil
}

func (m *memLedger) MutateOrCreate(_ context.Context, code string, fn func(*Appeal, bool) error) error {
	a, created := m.records[code], false
	if _, ok := m.records[code]; !ok {
		a = Appeal{Code: code}
		created = true
	}
	if err := fn(&a, created); err != nil {
		return err
	}
	m.records[code] = a
	return nil
}

func (m *memLedger) List(_ context.Context, filter Filter) ([]Appeal, error) {
	var out []Appeal
	for _, a := range m.records {
		if filter.Site != "" && a.Site != filter.Site {
			continue
		}
		if filter.From != "" && a.Day < filter.From {
			continue
		}
		if filter.To != "" && a.Day > filter.To {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// memNotifier records published events.
type memNotifier struct {
	events []Event
}

func (m *memNotifier) Publish(_ context.Context, event Event) {
	m.events = append(m.events, event)
}

var baseTime = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memLedger, *memNotifier, *time.Time) {
	t.Helper()
	repo := newMemLedger()
	notifier := &memNotifier{}
	svc := NewService(repo, notifier, nil, Config{GracePeriod: 5 * 24 * time.Hour})
	now := baseTime
	svc.WithClock(func() time.Time { return now })
	return svc, repo, notifier, &now
}

func TestMarkForAppeal(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "d-1")
	require.NoError(t, err)
	require.Equal(t, "379006", a.Code)
	require.Equal(t, 50000.0, a.AmountWithheld)
	require.Equal(t, baseTime, a.MarkedAt)
	require.Equal(t, []State{StatePendingAppeal}, DeriveStates(a))
	require.Len(t, notifier.events, 1)
	require.Equal(t, EventMarked, notifier.events[0].Type)

	// re-mark updates the amount and restarts the grace anchor
	a, err = svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 60000, "")
	require.NoError(t, err)
	require.Equal(t, 60000.0, a.AmountWithheld)
	require.Equal(t, "d-1", a.OrderIdentity)

	_, err = svc.MarkForAppeal(ctx, "", "didi", "site-1", "2026-08-20", 100, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.MarkForAppeal(ctx, "x", "didi", "site-1", "2026-08-20", 0, "")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestMarkForAppealResolvedIsFinal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 1000, "")
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, "379006", 1000, "")
	require.NoError(t, err)
	_, err = svc.RegisterRefund(ctx, "379006", 0, true, "")
	require.NoError(t, err)

	_, err = svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 2000, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRecordResponse(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordResponse(ctx, "missing", 30000, "")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)

	a, err := svc.RecordResponse(ctx, "379006", 30000, "2026-08-27")
	require.NoError(t, err)
	require.Equal(t, 30000.0, *a.AmountPromisedBack)
	require.Equal(t, "2026-08-27", a.EstimatedRefundDate)
	require.NotNil(t, a.RespondedAt)
	require.Equal(t, []State{StateAppealed}, DeriveStates(a))
	require.Equal(t, EventResponded, notifier.events[len(notifier.events)-1].Type)

	_, err = svc.RecordResponse(ctx, "379006", 20000, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRecordResponseAfterDecline(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "379006")
	require.NoError(t, err)

	_, err = svc.RecordResponse(ctx, "379006", 30000, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRegisterRefundInstallmentsAndFillRemaining(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)

	// refund needs a promise first
	_, err = svc.RegisterRefund(ctx, "379006", 10000, false, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.RecordResponse(ctx, "379006", 30000, "")
	require.NoError(t, err)

	a, err := svc.RegisterRefund(ctx, "379006", 10000, false, "2026-08-25")
	require.NoError(t, err)
	require.InDelta(t, 10000, a.TotalRefunded(), AmountTolerance)

	// over the promise rejected
	_, err = svc.RegisterRefund(ctx, "379006", 25000, false, "")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	// fill-remaining computes the rest
	a, err = svc.RegisterRefund(ctx, "379006", 0, true, "")
	require.NoError(t, err)
	require.InDelta(t, 30000, a.TotalRefunded(), AmountTolerance)
	require.Len(t, a.Refunds, 2)
	require.Contains(t, DeriveStates(a), StateRefunded)

	// nothing left to fill
	_, err = svc.RegisterRefund(ctx, "379006", 0, true, "")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestDeclineAppeal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)

	a, err := svc.DeclineAppeal(ctx, "379006")
	require.NoError(t, err)
	require.True(t, a.SiteDeclined)
	require.Equal(t, []State{StateSiteDeclined}, DeriveStates(a))

	// once the channel responded, declining is no longer possible
	_, err = svc.MarkForAppeal(ctx, "379007", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, "379007", 30000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "379007")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestScheduleDebitGateAndCap(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)

	// inside the grace window, no response, not declined: gate closed
	_, err = svc.ScheduleDebit(ctx, "379006", 20000, "2026-08-2", "")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// one minute before the grace runs out it is still closed
	*now = baseTime.Add(5*24*time.Hour - time.Minute)
	_, err = svc.ScheduleDebit(ctx, "379006", 20000, "2026-08-2", "")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// at the boundary it opens
	*now = baseTime.Add(5 * 24 * time.Hour)
	event, err := svc.ScheduleDebit(ctx, "379006", 20000, "2026-08-2", "")
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.False(t, event.Executed)
	require.Equal(t, "2026-08-2", event.Period)

	// scheduled total may not exceed the outstanding loss
	_, err = svc.ScheduleDebit(ctx, "379006", 40000, "2026-09-1", "")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	// exactly up to the loss is fine
	_, err = svc.ScheduleDebit(ctx, "379006", 30000, "2026-09-1", "")
	require.NoError(t, err)

	// and now there is nothing left to collect
	_, err = svc.ScheduleDebit(ctx, "379006", 1, "2026-09-1", "")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestScheduleDebitDeclinedSkipsGrace(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "379006")
	require.NoError(t, err)

	event, err := svc.ScheduleDebit(ctx, "379006", 50000, "", "")
	require.NoError(t, err)
	// defaulted to the fortnight containing the clock
	require.Equal(t, "2026-08-2", event.Period)
}

func TestScheduleDebitValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "379006")
	require.NoError(t, err)

	_, err = svc.ScheduleDebit(ctx, "379006", -5, "2026-08-2", "")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
	_, err = svc.ScheduleDebit(ctx, "379006", 100, "2026-08-3", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	// fully refunded appeal has no loss
	_, err = svc.MarkForAppeal(ctx, "379007", "didi", "site-1", "2026-08-20", 1000, "")
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, "379007", 1000, "")
	require.NoError(t, err)
	_, err = svc.RegisterRefund(ctx, "379007", 0, true, "")
	require.NoError(t, err)
	_, err = svc.ScheduleDebit(ctx, "379007", 100, "2026-08-2", "")
	require.ErrorIs(t, err, shared.ErrNoLoss)
}

func TestExecuteDebit(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "379006")
	require.NoError(t, err)
	event, err := svc.ScheduleDebit(ctx, "379006", 50000, "2026-08-2", "")
	require.NoError(t, err)

	a, err := svc.ExecuteDebit(ctx, "379006", event.ID)
	require.NoError(t, err)
	require.True(t, a.Debits[0].Executed)
	require.True(t, a.FullyCovered())
	require.Equal(t, EventDebitDone, notifier.events[len(notifier.events)-1].Type)

	_, err = svc.ExecuteDebit(ctx, "379006", "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAbsorbLoss(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "379006")
	require.NoError(t, err)
	_, err = svc.ScheduleDebit(ctx, "379006", 30000, "2026-08-2", "")
	require.NoError(t, err)

	// explicit amount is capped at the uncovered remainder
	a, err := svc.AbsorbLoss(ctx, "379006", 25000)
	require.NoError(t, err)
	require.InDelta(t, 20000, a.CompanyAbsorbed, AmountTolerance)

	_, err = svc.AbsorbLoss(ctx, "379006", 100)
	require.ErrorIs(t, err, shared.ErrNoRemainder)

	a, err = svc.UndoAbsorption(ctx, "379006")
	require.NoError(t, err)
	require.Zero(t, a.CompanyAbsorbed)

	// zero means absorb whatever is uncovered
	a, err = svc.AbsorbLoss(ctx, "379006", 0)
	require.NoError(t, err)
	require.InDelta(t, 20000, a.CompanyAbsorbed, AmountTolerance)

	_, err = svc.AbsorbLoss(ctx, "379006", -1)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestListings(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	// pending response
	_, err := svc.MarkForAppeal(ctx, "100001", "didi", "site-1", "2026-08-20", 10000, "")
	require.NoError(t, err)
	// appealed, partially refunded
	_, err = svc.MarkForAppeal(ctx, "100002", "didi", "site-1", "2026-08-20", 20000, "")
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, "100002", 20000, "")
	require.NoError(t, err)
	_, err = svc.RegisterRefund(ctx, "100002", 5000, false, "")
	require.NoError(t, err)
	// declined, collectible now
	_, err = svc.MarkForAppeal(ctx, "100003", "didi", "site-2", "2026-08-21", 30000, "")
	require.NoError(t, err)
	_, err = svc.DeclineAppeal(ctx, "100003")
	require.NoError(t, err)

	pending, err := svc.ListPendingResponse(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "100001", pending[0].Code)

	refunds, err := svc.ListRefundsPending(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	require.Equal(t, "100002", refunds[0].Code)

	// 100002 (responded) and 100003 (declined) pass the gate; 100001 is
	// still inside the grace window
	eligible, err := svc.ListDebitEligible(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	require.Equal(t, "100002", eligible[0].Code)
	require.Equal(t, "100003", eligible[1].Code)

	// once the grace period lapses the silent appeal becomes collectible too
	*now = baseTime.Add(6 * 24 * time.Hour)
	eligible, err = svc.ListDebitEligible(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, eligible, 3)

	// site filter narrows
	bySite, err := svc.List(ctx, Filter{Site: "site-2"})
	require.NoError(t, err)
	require.Len(t, bySite, 1)

	byRange, err := svc.List(ctx, Filter{From: "2026-08-21", To: "2026-08-21"})
	require.NoError(t, err)
	require.Len(t, byRange, 1)
}

func TestFullLifecycle(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	// withheld 50000, channel promises 30000 and pays it, the site covers
	// 15000 via payroll, the company absorbs the rest
	_, err := svc.MarkForAppeal(ctx, "379006", "didi", "site-1", "2026-08-20", 50000, "d-1")
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, "379006", 30000, "2026-08-27")
	require.NoError(t, err)
	_, err = svc.RegisterRefund(ctx, "379006", 30000, false, "2026-08-27")
	require.NoError(t, err)

	*now = baseTime.Add(24 * time.Hour)
	event, err := svc.ScheduleDebit(ctx, "379006", 15000, "2026-08-2", "")
	require.NoError(t, err)
	a, err := svc.ExecuteDebit(ctx, "379006", event.ID)
	require.NoError(t, err)
	require.False(t, a.Resolved())

	a, err = svc.AbsorbLoss(ctx, "379006", 0)
	require.NoError(t, err)
	require.InDelta(t, 5000, a.CompanyAbsorbed, AmountTolerance)
	require.True(t, a.Resolved())

	states := DeriveStates(a)
	require.Contains(t, states, StateRefunded)
	require.Contains(t, states, StateDebited)
}
