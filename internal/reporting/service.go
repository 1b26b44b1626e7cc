// Package reporting computes read-only summaries over the order store and
// the appeals ledger. Nothing is cached; every query refolds the stores, so
// reports always reflect the latest merges and ledger moves.
package reporting

import (
	"context"
	"sort"
	"strings"

	"github.com/andres-saa/restaurant-reports/internal/appeals"
	"github.com/andres-saa/restaurant-reports/internal/orders"
)

// OrderSource is the slice of the order store reports read from.
type OrderSource interface {
	Range(ctx context.Context, sites []string, from, to string) ([]orders.SiteOrder, error)
	Undelivered(ctx context.Context) (map[string]bool, error)
}

// AppealSource is the slice of the ledger reports read from.
type AppealSource interface {
	List(ctx context.Context, filter appeals.Filter) ([]appeals.Appeal, error)
}

// Service folds the two stores into report payloads.
type Service struct {
	orders  OrderSource
	appeals AppealSource
}

// NewService constructs the reporting service.
func NewService(orderSrc OrderSource, appealSrc AppealSource) *Service {
	return &Service{orders: orderSrc, appeals: appealSrc}
}

// Query bounds a report run.
type Query struct {
	Sites []string
	From  string
	To    string
}

// Summary is the aggregate report for a query window.
type Summary struct {
	OrderCount    int            `json:"order_count"`
	ByDay         map[string]int `json:"by_day"`
	BySite        map[string]int `json:"by_site"`
	ByChannel     map[string]int `json:"by_channel"`
	Undelivered   int            `json:"undelivered"`
	Appeals       AppealSummary  `json:"appeals"`
}

// AppealSummary aggregates the ledger side of the window.
type AppealSummary struct {
	Count          int                `json:"count"`
	CountByState   map[string]int     `json:"count_by_state"`
	SumByState     map[string]float64 `json:"sum_by_state"`
	TotalWithheld  float64            `json:"total_withheld"`
	TotalPromised  float64            `json:"total_promised"`
	TotalRefunded  float64            `json:"total_refunded"`
	TotalAbsorbed  float64            `json:"total_absorbed"`
	PendingRefund  float64            `json:"pending_refund"`
	PendingDebit   float64            `json:"pending_debit"`
	OutstandingSum float64            `json:"outstanding_loss"`
}

// Summarize folds the window into one Summary. Empty stores produce a zeroed
// summary, not an error.
func (s *Service) Summarize(ctx context.Context, q Query) (Summary, error) {
	rows, err := s.orders.Range(ctx, q.Sites, q.From, q.To)
	if err != nil {
		return Summary{}, err
	}
	undelivered, err := s.orders.Undelivered(ctx)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{
		ByDay:     make(map[string]int),
		BySite:    make(map[string]int),
		ByChannel: make(map[string]int),
	}
	for _, row := range rows {
		out.OrderCount++
		out.ByDay[row.Day]++
		out.BySite[row.Site]++
		if ch := row.Record.Channel; ch != "" {
			out.ByChannel[ch]++
		}
		if undelivered[row.Record.OrderIdentity] {
			out.Undelivered++
		}
	}

	siteSet := make(map[string]struct{}, len(q.Sites))
	for _, site := range q.Sites {
		siteSet[site] = struct{}{}
	}
	ledger, err := s.appeals.List(ctx, appeals.Filter{From: q.From, To: q.To})
	if err != nil {
		return Summary{}, err
	}
	as := AppealSummary{
		CountByState: make(map[string]int),
		SumByState:   make(map[string]float64),
	}
	for _, a := range ledger {
		if len(siteSet) > 0 {
			if _, ok := siteSet[a.Site]; !ok {
				continue
			}
		}
		as.Count++
		as.TotalWithheld += a.AmountWithheld
		as.TotalRefunded += a.TotalRefunded()
		as.TotalAbsorbed += a.CompanyAbsorbed
		as.OutstandingSum += a.OutstandingLoss()
		if p := a.AmountPromisedBack; p != nil {
			as.TotalPromised += *p
			if pending := *p - a.TotalRefunded(); pending > appeals.AmountTolerance {
				as.PendingRefund += pending
			}
		}
		as.PendingDebit += a.SiteOwedToExecute()
		for _, state := range appeals.DeriveStates(a) {
			as.CountByState[string(state)]++
			as.SumByState[string(state)] += a.AmountWithheld
		}
	}
	out.Appeals = as
	return out, nil
}

// MasterRow joins one order with its ledger record when one exists.
type MasterRow struct {
	Site        string             `json:"site"`
	Day         string             `json:"day"`
	Order       orders.OrderRecord `json:"order"`
	Undelivered bool               `json:"undelivered"`
	Appeal      *appeals.Appeal    `json:"appeal,omitempty"`
	States      []string           `json:"states,omitempty"`
}

// MasterPage is one page of the master report.
type MasterPage struct {
	Rows     []MasterRow `json:"rows"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// MasterQuery bounds and pages the master report.
type MasterQuery struct {
	Query
	Search   string
	Page     int
	PageSize int
}

// Master builds the paginated orders-with-appeals join. Search matches any
// reference, the customer, channel or site, case-insensitively.
func (s *Service) Master(ctx context.Context, q MasterQuery) (MasterPage, error) {
	rows, err := s.orders.Range(ctx, q.Sites, q.From, q.To)
	if err != nil {
		return MasterPage{}, err
	}
	undelivered, err := s.orders.Undelivered(ctx)
	if err != nil {
		return MasterPage{}, err
	}
	ledger, err := s.appeals.List(ctx, appeals.Filter{From: q.From, To: q.To})
	if err != nil {
		return MasterPage{}, err
	}
	byCode := make(map[string]*appeals.Appeal, len(ledger))
	for i := range ledger {
		byCode[orders.NormalizeDisplayCode(ledger[i].Code)] = &ledger[i]
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	all := make([]MasterRow, 0, len(rows))
	for _, row := range rows {
		mr := MasterRow{
			Site:        row.Site,
			Day:         row.Day,
			Order:       row.Record,
			Undelivered: undelivered[row.Record.OrderIdentity],
		}
		if a, ok := byCode[orders.NormalizeDisplayCode(row.Record.ChannelOrderCode)]; ok {
			mr.Appeal = a
			for _, state := range appeals.DeriveStates(*a) {
				mr.States = append(mr.States, string(state))
			}
		}
		if search != "" && !matchesSearch(mr, search) {
			continue
		}
		all = append(all, mr)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Day != all[j].Day {
			return all[i].Day > all[j].Day
		}
		if all[i].Site != all[j].Site {
			return all[i].Site < all[j].Site
		}
		return all[i].Order.ChannelOrderCode < all[j].Order.ChannelOrderCode
	})

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return MasterPage{Rows: all[start:end], Total: len(all), Page: page, PageSize: size}, nil
}

func matchesSearch(row MasterRow, search string) bool {
	fields := []string{
		row.Site,
		row.Day,
		row.Order.ChannelOrderCode,
		row.Order.ChannelOrderID,
		row.Order.UniqueRef,
		row.Order.Channel,
		row.Order.CustomerName,
		row.Order.CustomerPhone,
	}
	fields = append(fields, row.States...)
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
