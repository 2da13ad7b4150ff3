package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultCacheTTL = 5 * time.Minute

	freshKey = "sicoem:equipment"
	staleKey = "sicoem:equipment:stale"
)

// SheetLookup reads the equipment inventory from a published Google Sheet.
type SheetLookup struct {
	url          string
	organization string
	ttl          time.Duration
	cache        Cache
	httpClient   *http.Client
}

// NewSheetLookup creates a lookup for the gviz endpoint at url. A nil cache uses a MemoryCache.
func NewSheetLookup(url, organization string, ttl time.Duration, cache Cache) *SheetLookup {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &SheetLookup{
		url:          url,
		organization: organization,
		ttl:          ttl,
		cache:        cache,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SheetLookup) FindByCode(ctx context.Context, code string) (*Equipment, error) {
	items, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	match := MatchCode(items, code)
	if match == nil {
		slog.Info("Equipment: no match", "code", code, "candidates", len(items))
	}
	return match, nil
}

// All returns the inventory, from cache while fresh. When the sheet cannot be
// fetched the last known list is served instead.
func (s *SheetLookup) All(ctx context.Context) ([]Equipment, error) {
	if items, ok := s.cached(ctx, freshKey); ok {
		return items, nil
	}

	items, fetchErr := s.fetch(ctx)
	if fetchErr == nil {
		s.store(ctx, items)
		return items, nil
	}

	if items, ok := s.cached(ctx, staleKey); ok {
		slog.Warn("Equipment: sheet unavailable, serving cached inventory", "error", fetchErr, "items", len(items))
		return items, nil
	}
	return nil, fmt.Errorf("failed to load equipment inventory: %w", fetchErr)
}

func (s *SheetLookup) fetch(ctx context.Context) ([]Equipment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheet returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	items, err := ParseGviz(body, s.organization)
	if err != nil {
		return nil, err
	}
	slog.Info("Equipment: inventory fetched", "items", len(items))
	return items, nil
}

func (s *SheetLookup) cached(ctx context.Context, key string) ([]Equipment, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Equipment: cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var items []Equipment
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("Equipment: ignoring corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	return items, true
}

func (s *SheetLookup) store(ctx context.Context, items []Equipment) {
	data, err := json.Marshal(items)
	if err != nil {
		slog.Warn("Equipment: failed to encode inventory for cache", "error", err)
		return
	}
	if err := s.cache.Set(ctx, freshKey, data, s.ttl); err != nil {
		slog.Warn("Equipment: cache write failed", "key", freshKey, "error", err)
	}
	if err := s.cache.Set(ctx, staleKey, data, 0); err != nil {
		slog.Warn("Equipment: cache write failed", "key", staleKey, "error", err)
	}
}
