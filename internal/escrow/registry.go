package escrow

import (
	"context"
	"sync"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/models"
)

// Registry is the external asset registry the vault takes custody through.
// Transfer must be atomic: either ownership moves or nothing changes.
type Registry interface {
	OwnerOf(ctx context.Context, asset models.AssetRef) (string, error)
	IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error)
	GetApproved(ctx context.Context, asset models.AssetRef) (string, error)
	Transfer(ctx context.Context, asset models.AssetRef, from, to string) error
}

// ManagedRegistry adds the account and admin operations the API exposes.
type ManagedRegistry interface {
	Registry
	Mint(ctx context.Context, asset models.AssetRef, owner string) error
	Approve(ctx context.Context, caller string, asset models.AssetRef, operator string) error
	SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error
}

type MemoryRegistry struct {
	mu        sync.RWMutex
	owners    map[models.AssetRef]string
	approvals map[models.AssetRef]string
	operators map[string]map[string]bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		owners:    make(map[models.AssetRef]string),
		approvals: make(map[models.AssetRef]string),
		operators: make(map[string]map[string]bool),
	}
}

func (r *MemoryRegistry) Mint(_ context.Context, asset models.AssetRef, owner string) error {
	if !asset.Valid() || owner == "" {
		return apperr.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[asset]; ok {
		return apperr.ErrAssetAlreadyListed
	}
	r.owners[asset] = owner
	return nil
}

func (r *MemoryRegistry) OwnerOf(_ context.Context, asset models.AssetRef) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[asset]
	if !ok {
		return "", apperr.ErrAssetNotFound
	}
	return owner, nil
}

func (r *MemoryRegistry) IsApprovedForAll(_ context.Context, owner, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators[owner][operator], nil
}

func (r *MemoryRegistry) GetApproved(_ context.Context, asset models.AssetRef) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.owners[asset]; !ok {
		return "", apperr.ErrAssetNotFound
	}
	return r.approvals[asset], nil
}

func (r *MemoryRegistry) Approve(_ context.Context, caller string, asset models.AssetRef, operator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[asset]
	if !ok {
		return apperr.ErrAssetNotFound
	}
	if owner != caller {
		return apperr.ErrNotOwner
	}
	if operator == "" {
		delete(r.approvals, asset)
		return nil
	}
	r.approvals[asset] = operator
	return nil
}

func (r *MemoryRegistry) SetApprovalForAll(_ context.Context, owner, operator string, approved bool) error {
	if owner == "" || operator == "" {
		return apperr.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !approved {
		delete(r.operators[owner], operator)
		return nil
	}
	if r.operators[owner] == nil {
		r.operators[owner] = make(map[string]bool)
	}
	r.operators[owner][operator] = true
	return nil
}

// Transfer moves the asset and clears its single-asset approval.
func (r *MemoryRegistry) Transfer(_ context.Context, asset models.AssetRef, from, to string) error {
	if to == "" {
		return apperr.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[asset]
	if !ok {
		return apperr.ErrAssetNotFound
	}
	if owner != from {
		return apperr.ErrNotOwner
	}
	r.owners[asset] = to
	delete(r.approvals, asset)
	return nil
}
