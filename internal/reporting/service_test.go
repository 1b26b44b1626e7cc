package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andres-saa/restaurant-reports/internal/appeals"
	"github.com/andres-saa/restaurant-reports/internal/orders"
)

type stubOrders struct {
	rows        []orders.SiteOrder
	undelivered map[string]bool
	err         error
}

func (s *stubOrders) Range(_ context.Context, sites []string, from, to string) ([]orders.SiteOrder, error) {
	if s.err != nil {
		return nil, s.err
	}
	allowed := make(map[string]bool, len(sites))
	for _, site := range sites {
		allowed[site] = true
	}
	var out []orders.SiteOrder
	for _, row := range s.rows {
		if len(allowed) > 0 && !allowed[row.Site] {
			continue
		}
		if row.Day < from || row.Day > to {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *stubOrders) Undelivered(context.Context) (map[string]bool, error) {
	if s.undelivered == nil {
		return map[string]bool{}, nil
	}
	return s.undelivered, nil
}

type stubAppeals struct {
	records []appeals.Appeal
}

func (s *stubAppeals) List(_ context.Context, filter appeals.Filter) ([]appeals.Appeal, error) {
	var out []appeals.Appeal
	for _, a := range s.records {
		if filter.From != "" && a.Day < filter.From {
			continue
		}
		if filter.To != "" && a.Day > filter.To {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func order(site, day, code, identity, channel string) orders.SiteOrder {
	return orders.SiteOrder{
		Site: site,
		Day:  day,
		Record: orders.OrderRecord{
			OrderIdentity:    identity,
			ChannelOrderCode: code,
			Channel:          channel,
		},
	}
}

func fixtureSources() (*stubOrders, *stubAppeals) {
	promised := 30000.0
	orderSrc := &stubOrders{
		rows: []orders.SiteOrder{
			order("site-1", "2026-08-20", "379006", "d-1", "didi"),
			order("site-1", "2026-08-20", "379007", "d-2", "rappi"),
			order("site-1", "2026-08-21", "379008", "d-3", "didi"),
			order("site-2", "2026-08-21", "401001", "d-4", "didi"),
		},
		undelivered: map[string]bool{"d-2": true},
	}
	appealSrc := &stubAppeals{records: []appeals.Appeal{
		{
			Code:               "379006",
			Site:               "site-1",
			Day:                "2026-08-20",
			Channel:            "didi",
			AmountWithheld:     50000,
			AmountPromisedBack: &promised,
			Refunds:            []appeals.RefundEvent{{Amount: 10000, Date: "2026-08-22"}},
			MarkedAt:           time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
			RespondedAt:        &[]time.Time{time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)}[0],
		},
		{
			Code:           "401001",
			Site:           "site-2",
			Day:            "2026-08-21",
			Channel:        "didi",
			AmountWithheld: 20000,
			SiteDeclined:   true,
			MarkedAt:       time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC),
		},
	}}
	return orderSrc, appealSrc
}

func TestSummarize(t *testing.T) {
	orderSrc, appealSrc := fixtureSources()
	svc := NewService(orderSrc, appealSrc)

	sum, err := svc.Summarize(context.Background(), Query{From: "2026-08-20", To: "2026-08-21"})
	require.NoError(t, err)

	require.Equal(t, 4, sum.OrderCount)
	require.Equal(t, map[string]int{"2026-08-20": 2, "2026-08-21": 2}, sum.ByDay)
	require.Equal(t, map[string]int{"site-1": 3, "site-2": 1}, sum.BySite)
	require.Equal(t, map[string]int{"didi": 3, "rappi": 1}, sum.ByChannel)
	require.Equal(t, 1, sum.Undelivered)

	as := sum.Appeals
	require.Equal(t, 2, as.Count)
	require.InDelta(t, 70000, as.TotalWithheld, 0.01)
	require.InDelta(t, 30000, as.TotalPromised, 0.01)
	require.InDelta(t, 10000, as.TotalRefunded, 0.01)
	require.InDelta(t, 20000, as.PendingRefund, 0.01)
	// outstanding: 40000 on the appealed order, 20000 on the declined one
	require.InDelta(t, 60000, as.OutstandingSum, 0.01)
	require.InDelta(t, 60000, as.PendingDebit, 0.01)
	require.Equal(t, 1, as.CountByState[string(appeals.StateAppealed)])
	require.Equal(t, 1, as.CountByState[string(appeals.StateSiteDeclined)])
	require.InDelta(t, 20000, as.SumByState[string(appeals.StateSiteDeclined)], 0.01)
}

func TestSummarizeSiteFilterAppliesToLedger(t *testing.T) {
	orderSrc, appealSrc := fixtureSources()
	svc := NewService(orderSrc, appealSrc)

	sum, err := svc.Summarize(context.Background(), Query{
		Sites: []string{"site-2"},
		From:  "2026-08-20",
		To:    "2026-08-21",
	})
	require.NoError(t, err)
	require.Equal(t, 1, sum.OrderCount)
	require.Equal(t, 1, sum.Appeals.Count)
	require.InDelta(t, 20000, sum.Appeals.TotalWithheld, 0.01)
}

func TestSummarizeEmptyWindow(t *testing.T) {
	svc := NewService(&stubOrders{}, &stubAppeals{})
	sum, err := svc.Summarize(context.Background(), Query{From: "2026-01-01", To: "2026-01-02"})
	require.NoError(t, err)
	require.Zero(t, sum.OrderCount)
	require.Zero(t, sum.Appeals.Count)
}

func TestMasterJoinsAndSorts(t *testing.T) {
	orderSrc, appealSrc := fixtureSources()
	svc := NewService(orderSrc, appealSrc)

	page, err := svc.Master(context.Background(), MasterQuery{
		Query: Query{From: "2026-08-20", To: "2026-08-21"},
	})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	require.Len(t, page.Rows, 4)

	// newest day first, then site, then code
	require.Equal(t, "2026-08-21", page.Rows[0].Day)
	require.Equal(t, "site-1", page.Rows[0].Site)
	require.Equal(t, "401001", page.Rows[1].Order.ChannelOrderCode)

	var joined, undelivered int
	for _, row := range page.Rows {
		if row.Appeal != nil {
			joined++
			require.NotEmpty(t, row.States)
		}
		if row.Undelivered {
			undelivered++
		}
	}
	require.Equal(t, 2, joined)
	require.Equal(t, 1, undelivered)
}

func TestMasterSearch(t *testing.T) {
	orderSrc, appealSrc := fixtureSources()
	svc := NewService(orderSrc, appealSrc)

	page, err := svc.Master(context.Background(), MasterQuery{
		Query:  Query{From: "2026-08-20", To: "2026-08-21"},
		Search: "rappi",
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "379007", page.Rows[0].Order.ChannelOrderCode)

	// derived states are searchable too
	page, err = svc.Master(context.Background(), MasterQuery{
		Query:  Query{From: "2026-08-20", To: "2026-08-21"},
		Search: "site_declined",
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "401001", page.Rows[0].Order.ChannelOrderCode)
}

func TestMasterPagination(t *testing.T) {
	orderSrc, appealSrc := fixtureSources()
	svc := NewService(orderSrc, appealSrc)

	page, err := svc.Master(context.Background(), MasterQuery{
		Query:    Query{From: "2026-08-20", To: "2026-08-21"},
		Page:     2,
		PageSize: 3,
	})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	require.Len(t, page.Rows, 1)

	// past the end returns an empty page, not an error
	page, err = svc.Master(context.Background(), MasterQuery{
		Query: Query{From: "2026-08-20", To: "2026-08-21"},
		Page:  99,
	})
	require.NoError(t, err)
	require.Empty(t, page.Rows)
	require.Equal(t, 4, page.Total)
}
