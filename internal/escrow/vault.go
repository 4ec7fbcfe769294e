package escrow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/models"
)

// Vault takes custody of listed assets on behalf of the exchange. It owns no
// listing state; the market ledger decides who an asset is released to.
type Vault struct {
	registry Registry
	identity string
	log      *zap.Logger
}

func NewVault(registry Registry, identity string, log *zap.Logger) *Vault {
	if log == nil {
		log = zap.NewNop()
	}
	return &Vault{registry: registry, identity: identity, log: log}
}

// Identity is the registry account the vault holds assets under.
func (v *Vault) Identity() string {
	return v.identity
}

// Hold moves asset from owner into custody. The vault must be approved for
// the asset or as an operator for all of the owner's assets.
func (v *Vault) Hold(ctx context.Context, owner string, asset models.AssetRef) error {
	current, err := v.registry.OwnerOf(ctx, asset)
	if err != nil {
		return fmt.Errorf("owner of %s: %w", asset, err)
	}
	if current != owner {
		return apperr.ErrNotOwner
	}

	approved, err := v.isApproved(ctx, owner, asset)
	if err != nil {
		return err
	}
	if !approved {
		return apperr.ErrNotApproved
	}

	if err := v.registry.Transfer(ctx, asset, owner, v.identity); err != nil {
		return fmt.Errorf("%w: hold %s: %w", apperr.ErrRegistryFailure, asset, err)
	}
	v.log.Info("asset held", zap.String("asset", asset.String()), zap.String("owner", owner))
	return nil
}

func (v *Vault) isApproved(ctx context.Context, owner string, asset models.AssetRef) (bool, error) {
	all, err := v.registry.IsApprovedForAll(ctx, owner, v.identity)
	if err != nil {
		return false, fmt.Errorf("%w: operator approval: %w", apperr.ErrRegistryFailure, err)
	}
	if all {
		return true, nil
	}
	single, err := v.registry.GetApproved(ctx, asset)
	if err != nil {
		return false, fmt.Errorf("%w: asset approval: %w", apperr.ErrRegistryFailure, err)
	}
	return single == v.identity, nil
}

// Release hands a held asset to its new owner.
func (v *Vault) Release(ctx context.Context, asset models.AssetRef, to string) error {
	if to == "" {
		return apperr.ErrInvalidIdentity
	}
	if err := v.registry.Transfer(ctx, asset, v.identity, to); err != nil {
		return fmt.Errorf("%w: release %s: %w", apperr.ErrRegistryFailure, asset, err)
	}
	v.log.Info("asset released", zap.String("asset", asset.String()), zap.String("to", to))
	return nil
}

// Holds reports whether the vault currently has custody of asset.
func (v *Vault) Holds(ctx context.Context, asset models.AssetRef) (bool, error) {
	owner, err := v.registry.OwnerOf(ctx, asset)
	if errors.Is(err, apperr.ErrAssetNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == v.identity, nil
}
