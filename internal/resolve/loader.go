package resolve

import (
	"context"

	"overlaysync/internal/domain"
)

// Initializer receives the result of a resolution pass.
type Initializer interface {
	Init(ctx context.Context, items []domain.InitData) error
}

// Resolver is satisfied by *Pipeline.
type Resolver interface {
	Resolve(ctx context.Context, req domain.ResolveRequest, opts domain.ResolveOptions) []domain.InitData
}

// Load resolves req and hands a non-empty result to target. An empty result
// leaves the target untouched. It returns the number of videos loaded.
func Load(ctx context.Context, resolver Resolver, target Initializer, req domain.ResolveRequest, opts domain.ResolveOptions) (int, error) {
	items := resolver.Resolve(ctx, req, opts)
	if len(items) == 0 {
		return 0, nil
	}
	if err := target.Init(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
