package orders

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// DBRepository defines the persistence behaviour the service needs. Every
// Update* call must run its closure as one read-modify-write transaction so
// partitions serialize their writers.
type DBRepository interface {
	UpdatePartition(ctx context.Context, site, day string, fn func(*Partition) error) error
	Partition(ctx context.Context, site, day string) (Partition, error)
	PartitionsForDay(ctx context.Context, day string) ([]Partition, error)
	PartitionsInRange(ctx context.Context, sites []string, from, to string) ([]Partition, error)
	UpsertRenameMap(ctx context.Context, channel, day string, entries map[string]string) (map[string]string, error)
	RenameMapsForDay(ctx context.Context, day string) ([]RenameMap, error)
	SetUndelivered(ctx context.Context, orderIdentity string, undelivered bool) error
	UndeliveredSet(ctx context.Context) (map[string]bool, error)
}

// AssetMigrator moves and reads the evidence folders kept per order
// reference. Copies create the destination and never delete the source.
type AssetMigrator interface {
	CopyMerge(ctx context.Context, fromKey, toKey string) error
	Consolidate(ctx context.Context, canonical string, aliases []string) error
	Listing(key string) (map[string][]string, error)
}

// RenameMap is one channel's volatileId -> displayCode mapping for a day.
type RenameMap struct {
	Channel string
	Day     string
	Entries map[string]string
}

// SiteOrder pairs a record with the partition it lives in.
type SiteOrder struct {
	Site   string      `json:"site"`
	Day    string      `json:"day"`
	Record OrderRecord `json:"record"`
}

// Service owns merge and identifier-reconciliation behaviour for the order
// store.
type Service struct {
	repo   DBRepository
	assets AssetMigrator
	logger *slog.Logger
}

// NewService constructs the order store service.
func NewService(repo DBRepository, assets AssetMigrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, assets: assets, logger: logger}
}

var privacyNoiseRe = regexp.MustCompile(`(?i)privacy\s+protection\s*|\*+`)

// CleanCustomerName strips channel privacy-masking noise from a name.
func CleanCustomerName(s string) string {
	s = privacyNoiseRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func validateIncoming(rec OrderRecord) error {
	if strings.TrimSpace(rec.Channel) == "" {
		return fmt.Errorf("%w: missing channel", shared.ErrValidation)
	}
	if rec.OrderIdentity == "" && rec.ChannelOrderCode == "" && rec.UniqueRef == "" {
		return fmt.Errorf("%w: record has no usable identifier", shared.ErrValidation)
	}
	return nil
}

// MergeBatch folds a possibly-overlapping batch of partial records into the
// (site, day) partition. Existing records are merged field-wise, new ones
// inserted, nothing is ever deleted. Malformed records are skipped and
// reported, never fatal.
func (s *Service) MergeBatch(ctx context.Context, site, day string, incoming []OrderRecord) (BatchResult, error) {
	if strings.TrimSpace(site) == "" {
		return BatchResult{}, fmt.Errorf("%w: site is required", shared.ErrValidation)
	}
	if _, err := shared.ParseDay(day); err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	err := s.repo.UpdatePartition(ctx, site, day, func(p *Partition) error {
		for i, rec := range incoming {
			if err := validateIncoming(rec); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, RecordError{Index: i, Reason: err.Error()})
				continue
			}
			rec.CustomerName = CleanCustomerName(rec.CustomerName)
			key := rec.OrderIdentity
			if key == "" {
				// No merge key upstream: keep the record under a synthetic
				// identity rather than drop it. Possible duplicates are a
				// documented limitation.
				key = "anon-" + uuid.NewString()
				rec.OrderIdentity = key
				rec.Synthetic = true
			}
			if existing, ok := p.Records[key]; ok {
				p.Records[key] = mergeRecord(existing, rec)
			} else {
				p.Records[key] = rec
			}
			result.Merged++
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	if result.Skipped > 0 {
		s.logger.Warn("merge batch skipped malformed records",
			slog.String("site", site), slog.String("day", day), slog.Int("skipped", result.Skipped))
	}
	return result, nil
}

// ApplyRenameMap rewrites volatile channel order ids to their stable display
// codes across every site partition of the day, for records on the channel
// the map was built for. Asset folders keyed by the old id are copy-merged to
// the new key first, so re-running the same map is a no-op and returns 0.
func (s *Service) ApplyRenameMap(ctx context.Context, day, channel string, entries map[string]string) (int, error) {
	if _, err := shared.ParseDay(day); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	partitions, err := s.repo.PartitionsForDay(ctx, day)
	if err != nil {
		return 0, err
	}
	replaced := 0
	for _, part := range partitions {
		part := part
		err := s.repo.UpdatePartition(ctx, part.Site, part.Day, func(p *Partition) error {
			for key, rec := range p.Records {
				if rec.Channel != channel {
					continue
				}
				display, ok := entries[strings.TrimSpace(rec.ChannelOrderCode)]
				if !ok {
					continue
				}
				display = NormalizeDisplayCode(display)
				if display == "" {
					continue
				}
				if s.assets != nil {
					if err := s.assets.CopyMerge(ctx, rec.ChannelOrderCode, display); err != nil {
						// Missing or unreadable asset source must not abort
						// the batch; the rename itself still proceeds.
						s.logger.Warn("asset migration skipped",
							slog.String("from", rec.ChannelOrderCode),
							slog.String("to", display),
							slog.Any("error", err))
					}
				}
				rec.ChannelOrderID = rec.ChannelOrderCode
				rec.ChannelOrderCode = display
				p.Records[key] = rec
				replaced++
			}
			return nil
		})
		if err != nil {
			return replaced, err
		}
	}
	return replaced, nil
}

// RecordDailyOrders stores the channel's rename payload for the day (merged
// into any earlier captures) and immediately applies the accumulated map.
func (s *Service) RecordDailyOrders(ctx context.Context, channel, day string, payload RenamePayload) (applied, mapSize int, err error) {
	if _, err := shared.ParseDay(day); err != nil {
		return 0, 0, err
	}
	entries := payload.ExtractRenameMap()
	if len(entries) == 0 {
		return 0, 0, nil
	}
	merged, err := s.repo.UpsertRenameMap(ctx, channel, day, entries)
	if err != nil {
		return 0, 0, err
	}
	applied, err = s.ApplyRenameMap(ctx, day, channel, merged)
	return applied, len(merged), err
}

// ReapplyRenameMaps re-runs every stored rename map for the day. Safe to run
// periodically; already-renamed records no longer match any map key.
func (s *Service) ReapplyRenameMaps(ctx context.Context, day string) (int, error) {
	maps, err := s.repo.RenameMapsForDay(ctx, day)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range maps {
		n, err := s.ApplyRenameMap(ctx, day, m.Channel, m.Entries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// OrganizeAssets walks the stored orders in the day range and copy-merges
// the evidence kept under each record's alternate references onto its stable
// display code. Records still carrying a volatile code are left for a later
// run. A failed consolidation is logged and the walk continues. Returns how
// many records had their folders consolidated.
func (s *Service) OrganizeAssets(ctx context.Context, siteIDs []string, from, to string) (int, error) {
	if s.assets == nil {
		return 0, nil
	}
	f, t, err := shared.ParseDayRange(from, to)
	if err != nil {
		return 0, err
	}
	partitions, err := s.repo.PartitionsInRange(ctx, siteIDs, f.Format(shared.DayFormat), t.Format(shared.DayFormat))
	if err != nil {
		return 0, err
	}
	organized := 0
	for _, p := range partitions {
		for _, rec := range p.Records {
			if err := ctx.Err(); err != nil {
				return organized, err
			}
			canonical, aliases := rec.assetAliases()
			if canonical == "" || len(aliases) == 0 {
				continue
			}
			if err := s.assets.Consolidate(ctx, canonical, aliases); err != nil {
				s.logger.Warn("asset consolidation skipped",
					slog.String("code", canonical), slog.Any("error", err))
				continue
			}
			organized++
		}
	}
	return organized, nil
}

// OrderAssets lists the evidence files stored for the order, grouped by
// category. Folders under the order's alternate references are included so
// evidence uploaded before a rename still shows up.
func (s *Service) OrderAssets(ctx context.Context, ref string) (map[string][]string, error) {
	row, err := s.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	if s.assets == nil {
		return out, nil
	}
	canonical, aliases := row.Record.assetAliases()
	if canonical == "" {
		canonical = NormalizeDisplayCode(ref)
	}
	seen := make(map[string]map[string]struct{})
	for _, key := range append([]string{canonical}, aliases...) {
		byCategory, err := s.assets.Listing(key)
		if err != nil {
			return nil, err
		}
		for cat, files := range byCategory {
			if seen[cat] == nil {
				seen[cat] = make(map[string]struct{})
			}
			for _, f := range files {
				if _, ok := seen[cat][f]; ok {
					continue
				}
				seen[cat][f] = struct{}{}
				out[cat] = append(out[cat], f)
			}
		}
	}
	return out, nil
}

// Partition returns the stored partition, empty when nothing was merged yet.
func (s *Service) Partition(ctx context.Context, site, day string) (Partition, error) {
	if _, err := shared.ParseDay(day); err != nil {
		return Partition{}, err
	}
	return s.repo.Partition(ctx, site, day)
}

// Range lists orders for the sites and inclusive day range, flattened and
// annotated with their partition.
func (s *Service) Range(ctx context.Context, sites []string, from, to string) ([]SiteOrder, error) {
	f, t, err := shared.ParseDayRange(from, to)
	if err != nil {
		return nil, err
	}
	partitions, err := s.repo.PartitionsInRange(ctx, sites, f.Format(shared.DayFormat), t.Format(shared.DayFormat))
	if err != nil {
		return nil, err
	}
	var out []SiteOrder
	for _, p := range partitions {
		for _, rec := range p.Records {
			out = append(out, SiteOrder{Site: p.Site, Day: p.Day, Record: rec})
		}
	}
	return out, nil
}

// FindByRef looks an order up by any of its references: display code,
// channel order id or POS unique identifier.
func (s *Service) FindByRef(ctx context.Context, ref string) (SiteOrder, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return SiteOrder{}, fmt.Errorf("%w: empty reference", shared.ErrValidation)
	}
	partitions, err := s.repo.PartitionsInRange(ctx, nil, "", "")
	if err != nil {
		return SiteOrder{}, err
	}
	for _, p := range partitions {
		for _, rec := range p.Records {
			if rec.matchesRef(ref) {
				return SiteOrder{Site: p.Site, Day: p.Day, Record: rec}, nil
			}
		}
	}
	return SiteOrder{}, fmt.Errorf("%w: order %q", shared.ErrNotFound, ref)
}

// MarkUndelivered flags an order as not delivered for cashier follow-up.
func (s *Service) MarkUndelivered(ctx context.Context, orderIdentity string) error {
	if strings.TrimSpace(orderIdentity) == "" {
		return fmt.Errorf("%w: order identity required", shared.ErrValidation)
	}
	return s.repo.SetUndelivered(ctx, orderIdentity, true)
}

// ClearUndelivered removes the not-delivered flag.
func (s *Service) ClearUndelivered(ctx context.Context, orderIdentity string) error {
	if strings.TrimSpace(orderIdentity) == "" {
		return fmt.Errorf("%w: order identity required", shared.ErrValidation)
	}
	return s.repo.SetUndelivered(ctx, orderIdentity, false)
}

// Undelivered returns the set of flagged order identities.
func (s *Service) Undelivered(ctx context.Context) (map[string]bool, error) {
	return s.repo.UndeliveredSet(ctx)
}
