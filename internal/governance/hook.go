package governance

import (
	"context"

	"github.com/asset-exchange/backend/internal/models"
)

// ExecutionHook is invoked once a proposal has been executed. Returning an
// error undoes the execution so it can be retried.
type ExecutionHook interface {
	OnExecuted(ctx context.Context, p *models.Proposal) error
}

type HookFunc func(ctx context.Context, p *models.Proposal) error

func (f HookFunc) OnExecuted(ctx context.Context, p *models.Proposal) error {
	return f(ctx, p)
}
