package sites

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DBRepository persists the site registry.
type DBRepository interface {
	Upsert(ctx context.Context, site Site) error
	Get(ctx context.Context, id string) (Site, error)
	List(ctx context.Context, includeHidden bool) ([]Site, error)
	SetHidden(ctx context.Context, id string, hidden bool) error
	SetDisplayName(ctx context.Context, id, displayName string) error
}

// Catalog pulls the site list from the POS.
type Catalog interface {
	Sites(ctx context.Context) ([]Site, error)
}

// Service keeps the registry in sync with the POS and answers the
// opening-hours question for the pollers.
type Service struct {
	repo    DBRepository
	catalog Catalog
	logger  *slog.Logger
	hours   OpeningHours

	mu       sync.Mutex
	channels map[string]struct{}
}

// NewService constructs the registry service.
func NewService(repo DBRepository, catalog Catalog, logger *slog.Logger, hours OpeningHours) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		logger:   logger,
		hours:    hours,
		channels: make(map[string]struct{}),
	}
}

// Refresh pulls the POS site list and upserts each entry, keeping the stored
// hide flag and display override. Returns how many sites were written.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	fetched, err := s.catalog.Sites(ctx)
	if err != nil {
		return 0, fmt.Errorf("sites: refresh: %w", err)
	}
	count := 0
	for _, site := range fetched {
		if site.ID == "" {
			continue
		}
		if existing, err := s.repo.Get(ctx, site.ID); err == nil {
			site.Hidden = existing.Hidden
			site.DisplayName = existing.DisplayName
		}
		if err := s.repo.Upsert(ctx, site); err != nil {
			s.logger.Warn("site upsert failed", "site", site.ID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// Visible lists sites shown to pollers and reports.
func (s *Service) Visible(ctx context.Context) ([]Site, error) {
	return s.repo.List(ctx, false)
}

// All lists every stored site including hidden ones.
func (s *Service) All(ctx context.Context) ([]Site, error) {
	return s.repo.List(ctx, true)
}

// Get returns one site.
func (s *Service) Get(ctx context.Context, id string) (Site, error) {
	return s.repo.Get(ctx, id)
}

// Hide toggles whether the site appears in listings and polling.
func (s *Service) Hide(ctx context.Context, id string, hidden bool) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetHidden(ctx, id, hidden)
}

// Rename sets the display-name override; empty clears it back to the POS name.
func (s *Service) Rename(ctx context.Context, id, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetDisplayName(ctx, id, displayName)
}

// OpenAt reports whether the chain is inside business hours at t.
func (s *Service) OpenAt(t time.Time) bool {
	return s.hours.Contains(t)
}

// ObserveChannel records a delivery channel seen on incoming orders.
func (s *Service) ObserveChannel(channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	s.mu.Unlock()
}

// Channels returns the sorted channel catalog accumulated so far.
func (s *Service) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
