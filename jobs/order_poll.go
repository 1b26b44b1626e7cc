package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/andres-saa/restaurant-reports/internal/jobs"
	"github.com/andres-saa/restaurant-reports/internal/orders"
	"github.com/andres-saa/restaurant-reports/internal/shared"
	"github.com/andres-saa/restaurant-reports/internal/sites"
)

// pollConcurrency bounds how many sites are fetched at once so the POS API
// is not hammered.
const pollConcurrency = 3

// Deps collects the collaborators the background jobs run against.
type Deps struct {
	Orders  *orders.Service
	Sites   *sites.Service
	POS     POSClient
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// POSClient is the slice of the upstream client the jobs use.
type POSClient interface {
	Sites(ctx context.Context) ([]sites.Site, error)
	Orders(ctx context.Context, siteID string) ([]orders.OrderRecord, error)
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// HandleOrderPoll processes TaskOrderPoll tasks.
func (d Deps) HandleOrderPoll(ctx context.Context, t *asynq.Task) error {
	var payload OrderPollPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	return d.Metrics.Track("order_poll").End(d.PollOrders(ctx, payload))
}

// PollOrders fetches each scoped site's order batch and merges it into the
// day partition. Outside opening hours the run is a no-op. One site failing
// never aborts the others; failures are collected and reported together.
func (d Deps) PollOrders(ctx context.Context, payload OrderPollPayload) error {
	now := d.now()
	if !d.Sites.OpenAt(now) {
		d.logger().Debug("order poll skipped, outside opening hours")
		return nil
	}
	day := payload.Day
	if day == "" {
		day = now.Format(shared.DayFormat)
	}

	scope := payload.Sites
	if len(scope) == 0 {
		visible, err := d.Sites.Visible(ctx)
		if err != nil {
			return fmt.Errorf("order poll: list sites: %w", err)
		}
		for _, s := range visible {
			scope = append(scope, s.ID)
		}
	}
	if len(scope) == 0 {
		d.logger().Debug("order poll skipped, no visible sites")
		return nil
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		errs    = make([]error, len(scope))
	)
	g.SetLimit(pollConcurrency)
	for i, siteID := range scope {
		i, siteID := i, siteID
		g.Go(func() error {
			errs[i] = d.pollSite(gctx, siteID, day)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, err := range errs {
		if err != nil {
			d.logger().Warn("site poll failed", "site", scope[i], "day", day, "error", err)
			failed = append(failed, scope[i])
		}
	}
	if len(failed) == len(scope) {
		return fmt.Errorf("order poll: every site failed: %w", errors.Join(errs...))
	}
	if len(failed) > 0 {
		d.logger().Warn("order poll finished with failures", "failed_sites", strings.Join(failed, ","))
	}
	return nil
}

func (d Deps) pollSite(ctx context.Context, siteID, day string) error {
	batch, err := d.POS.Orders(ctx, siteID)
	if err != nil {
		return err
	}
	// Only today's partition is merged; the POS listing can include trailing
	// orders from the previous day after midnight.
	incoming := batch[:0:0]
	for _, rec := range batch {
		if rec.PlacedDate != "" && rec.PlacedDate != day {
			continue
		}
		d.Sites.ObserveChannel(rec.Channel)
		incoming = append(incoming, rec)
	}
	result, err := d.Orders.MergeBatch(ctx, siteID, day, incoming)
	if err != nil {
		return err
	}
	d.Metrics.AddMerged(siteID, result.Merged)
	if result.Skipped > 0 {
		d.logger().Debug("poll skipped malformed records", "site", siteID, "skipped", result.Skipped)
	}
	return nil
}
