package appeals

import (
	"time"
)

// AmountTolerance absorbs float rounding when comparing ledger sums.
const AmountTolerance = 0.01

// RefundEvent is one installment the channel repaid against the promise.
type RefundEvent struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}

// DebitEvent is money recovered from the site's payroll settlement. It is
// scheduled first and flipped to executed once the payroll run withholds it.
type DebitEvent struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Period   string  `json:"period"`
	Date     string  `json:"date"`
	Executed bool    `json:"executed"`
}

// Appeal is the per-order-code financial record. Raw fields only; display
// states are derived on read by DeriveStates, never stored.
type Appeal struct {
	Code          string `json:"code"`
	Channel       string `json:"channel"`
	Site          string `json:"site"`
	Day           string `json:"day"`
	OrderIdentity string `json:"order_identity,omitempty"`

	AmountWithheld      float64  `json:"amount_withheld"`
	AmountPromisedBack  *float64 `json:"amount_promised_back,omitempty"`
	EstimatedRefundDate string   `json:"estimated_refund_date,omitempty"`
	SiteDeclined        bool     `json:"site_declined,omitempty"`

	// Refunds, Debits and CompanyAbsorbed are strictly additive: appended or
	// increased, never rewritten, so the record keeps its own history.
	Refunds         []RefundEvent `json:"refunds,omitempty"`
	Debits          []DebitEvent  `json:"debits,omitempty"`
	CompanyAbsorbed float64       `json:"company_absorbed,omitempty"`

	MarkedAt    time.Time  `json:"marked_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// TotalRefunded sums every refund installment.
func (a Appeal) TotalRefunded() float64 {
	var total float64
	for _, r := range a.Refunds {
		total += r.Amount
	}
	return total
}

// TotalDebits sums debit events; with executedOnly it counts only money the
// payroll run actually withheld.
func (a Appeal) TotalDebits(executedOnly bool) float64 {
	var total float64
	for _, d := range a.Debits {
		if executedOnly && !d.Executed {
			continue
		}
		total += d.Amount
	}
	return total
}

// OutstandingLoss is what the channel still owes after refunds.
func (a Appeal) OutstandingLoss() float64 {
	loss := a.AmountWithheld - a.TotalRefunded()
	if loss < 0 {
		return 0
	}
	return loss
}

// SiteOwedToSchedule is the uncovered loss still to put on a payroll period.
func (a Appeal) SiteOwedToSchedule() float64 {
	owed := a.OutstandingLoss() - a.TotalDebits(false) - a.CompanyAbsorbed
	if owed < 0 {
		return 0
	}
	return owed
}

// SiteOwedToExecute is the stricter variant counting only executed debits:
// what is still to actually withhold from payroll.
func (a Appeal) SiteOwedToExecute() float64 {
	owed := a.OutstandingLoss() - a.TotalDebits(true) - a.CompanyAbsorbed
	if owed < 0 {
		return 0
	}
	return owed
}

// FullyCovered reports whether executed debits plus absorption cover the
// outstanding loss, or there is no loss left at all.
func (a Appeal) FullyCovered() bool {
	return a.SiteOwedToExecute() <= AmountTolerance
}

// DebitEligible applies the collection gate: a site can only be charged once
// it declined the appeal, the channel responded, or the grace period since
// marking ran out without a response.
func (a Appeal) DebitEligible(now time.Time, grace time.Duration) bool {
	if a.SiteDeclined || a.AmountPromisedBack != nil {
		return true
	}
	return !a.MarkedAt.IsZero() && now.Sub(a.MarkedAt) >= grace
}

// State is a derived display state; several can hold at once since refund,
// debit and decline are independent axes.
type State string

const (
	StatePendingAppeal State = "PENDING_APPEAL"
	StateAppealed      State = "APPEALED"
	StateRefunded      State = "REFUNDED"
	StateSiteDeclined  State = "SITE_DECLINED"
	StateDebited       State = "DEBITED"
)

// DeriveStates computes the display states from the raw ledger fields. This
// is the single place that interprets field combinations; call sites must
// not re-derive them.
func DeriveStates(a Appeal) []State {
	var states []State
	if promised := a.AmountPromisedBack; promised != nil {
		if *promised > 0 && a.TotalRefunded() >= *promised-AmountTolerance {
			states = append(states, StateRefunded)
		} else {
			states = append(states, StateAppealed)
		}
	}
	loss := a.OutstandingLoss()
	if loss > 0 && a.TotalDebits(true)+a.CompanyAbsorbed >= loss-AmountTolerance {
		states = append(states, StateDebited)
	}
	if a.SiteDeclined {
		states = append(states, StateSiteDeclined)
	}
	if len(states) == 0 {
		states = append(states, StatePendingAppeal)
	}
	return states
}

// Resolved reports whether the record reached a terminal combination: the
// outstanding loss is gone (refunded away) or fully covered by executed
// debits and absorption. The record is still retained for reporting.
func (a Appeal) Resolved() bool {
	return a.FullyCovered()
}
