package market

import (
	"context"
	"sort"
	"sync"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/models"
)

// Store persists listings. Every write is conditional on the current state so
// that two writers sharing a store can never both close the same listing.
type Store interface {
	// InsertListing assigns the next id. It fails with ErrAssetAlreadyListed
	// when an active listing for the same asset exists.
	InsertListing(ctx context.Context, l *models.Listing) (uint64, error)
	GetListing(ctx context.Context, id uint64) (*models.Listing, error)
	ActiveListingByAsset(ctx context.Context, asset models.AssetRef) (*models.Listing, error)
	// CloseListing flips an active listing to status. ErrNotActive otherwise.
	CloseListing(ctx context.Context, id uint64, status, buyer string, closedAt int64) error
	// ReopenListing undoes CloseListing after a failed interaction.
	ReopenListing(ctx context.Context, id uint64) error
	// FailSettlement parks a closed sale whose payment could not be undone.
	// Only a listing in status sold qualifies; ErrNotActive otherwise.
	FailSettlement(ctx context.Context, id uint64) error
	ListListings(ctx context.Context, f ListFilter) ([]*models.Listing, error)
}

type ListFilter struct {
	Seller     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint64
	listings map[uint64]*models.Listing
	active   map[models.AssetRef]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[uint64]*models.Listing),
		active:   make(map[models.AssetRef]uint64),
	}
}

func (s *MemoryStore) InsertListing(_ context.Context, l *models.Listing) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[l.Asset]; ok {
		return 0, apperr.ErrAssetAlreadyListed
	}
	s.nextID++
	stored := l.Clone()
	stored.ID = s.nextID
	s.listings[stored.ID] = stored
	if stored.Active {
		s.active[stored.Asset] = stored.ID
	}
	return stored.ID, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id uint64) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, apperr.ErrListingNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryStore) ActiveListingByAsset(_ context.Context, asset models.AssetRef) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[asset]
	if !ok {
		return nil, apperr.ErrListingNotFound
	}
	return s.listings[id].Clone(), nil
}

func (s *MemoryStore) CloseListing(_ context.Context, id uint64, status, buyer string, closedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return apperr.ErrListingNotFound
	}
	if !l.Active || !models.IsValidListingTransition(l.Status, status) {
		return apperr.ErrNotActive
	}
	l.Active = false
	l.Status = status
	l.Buyer = buyer
	l.ClosedAt = closedAt
	delete(s.active, l.Asset)
	return nil
}

func (s *MemoryStore) ReopenListing(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return apperr.ErrListingNotFound
	}
	if l.Active {
		return nil
	}
	if l.Status == models.ListingStatusSettlementFailed {
		return apperr.ErrNotActive
	}
	if other, taken := s.active[l.Asset]; taken && other != id {
		return apperr.ErrAssetAlreadyListed
	}
	l.Active = true
	l.Status = models.ListingStatusActive
	l.Buyer = ""
	l.ClosedAt = 0
	s.active[l.Asset] = id
	return nil
}

func (s *MemoryStore) FailSettlement(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return apperr.ErrListingNotFound
	}
	if l.Active || l.Status != models.ListingStatusSold {
		return apperr.ErrNotActive
	}
	l.Status = models.ListingStatusSettlementFailed
	return nil
}

func (s *MemoryStore) ListListings(_ context.Context, f ListFilter) ([]*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Listing, 0)
	for _, l := range s.listings {
		if f.ActiveOnly && !l.Active {
			continue
		}
		if f.Seller != "" && l.Seller != f.Seller {
			continue
		}
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Limit, f.Offset), nil
}

func paginate(in []*models.Listing, limit, offset int) []*models.Listing {
	if offset >= len(in) {
		return []*models.Listing{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
