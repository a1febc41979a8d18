package modules

import (
	"context"
	"log/slog"
	"sort"
)

// Registry is the read side of the module catalog.
type Registry struct {
	repo   Repository
	logger *slog.Logger
}

// NewRegistry builds a Registry.
func NewRegistry(repo Repository, logger *slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// ListModules returns active modules applicable to filter, ordered by sort order then name.
// Read failures and an uninitialised registry both yield an empty list.
func (r *Registry) ListModules(ctx context.Context, filter *ActorType) []Module {
	if r == nil || r.repo == nil {
		return []Module{}
	}
	rows, err := r.repo.ListActive(ctx, filter)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("list modules", slog.Any("error", err))
		}
		return []Module{}
	}
	out := make([]Module, 0, len(rows))
	for _, m := range rows {
		if m.Active && m.Applies(filter) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// ActiveKeys returns the keys of every active module.
func (r *Registry) ActiveKeys(ctx context.Context) ([]string, error) {
	if r == nil || r.repo == nil {
		return nil, nil
	}
	rows, err := r.repo.ListActive(ctx, nil)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, m := range rows {
		if m.Active {
			keys = append(keys, m.Key)
		}
	}
	return keys, nil
}

// Seed upserts catalog entries. It is run at deployment, not per request.
func (r *Registry) Seed(ctx context.Context, catalog []Module) error {
	for _, m := range catalog {
		if err := r.repo.Upsert(ctx, m); err != nil {
			return err
		}
	}
	if r.logger != nil {
		r.logger.Info("modules seeded", slog.Int("count", len(catalog)))
	}
	return nil
}
