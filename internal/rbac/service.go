package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// ModuleSource lists the module keys permissions are seeded for.
type ModuleSource interface {
	ActiveKeys(ctx context.Context) ([]string, error)
}

// Service manages the permission matrix and resolves effective permissions.
type Service struct {
	repo     Repository
	modules  ModuleSource
	cache    *Cache
	activity shared.ActivityRecorder
	logger   *slog.Logger
}

// NewService constructs an RBAC service. cache and activity may be nil.
func NewService(repo Repository, modules ModuleSource, cache *Cache, activity shared.ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, modules: modules, cache: cache, activity: activity, logger: logger}
}

// SetPermissions upserts the given rows for the role. Duplicate module
// entries collapse to the last occurrence.
func (s *Service) SetPermissions(ctx context.Context, actor shared.Actor, roleID int64, perms []Permission) ([]Permission, error) {
	deduped, err := dedupePermissions(perms)
	if err != nil {
		return nil, err
	}
	var stored []Permission
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetRole(ctx, actor.TenantID, roleID); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: role %d does not exist", shared.ErrValidation, roleID)
			}
			return err
		}
		for _, p := range deduped {
			if err := tx.UpsertPermission(ctx, roleID, p); err != nil {
				return fmt.Errorf("upsert permission %s: %w", p.Module, err)
			}
		}
		stored, err = tx.ListPermissions(ctx, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	shared.RecordQuietly(ctx, s.activity, s.logger, shared.Activity{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Module:   "roles",
		ModuleID: roleID,
		Action:   "permissions_updated",
		Meta:     map[string]any{"modules": len(deduped)},
	})
	return stored, nil
}

func dedupePermissions(perms []Permission) ([]Permission, error) {
	if len(perms) == 0 {
		return nil, fmt.Errorf("%w: permissions must not be empty", shared.ErrValidation)
	}
	index := make(map[string]int, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p.Module = strings.TrimSpace(p.Module)
		if p.Module == "" {
			return nil, fmt.Errorf("%w: permission module is required", shared.ErrValidation)
		}
		if i, ok := index[p.Module]; ok {
			out[i] = p
			continue
		}
		index[p.Module] = len(out)
		out = append(out, p)
	}
	return out, nil
}

// GetPermissions lists a role's rows ordered by module.
func (s *Service) GetPermissions(ctx context.Context, tenantID, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, tenantID, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx, roleID)
}

// ResolveEffectivePermissions ORs the flags of every non-deleted role held
// by the user. A user with no roles receives an empty set.
func (s *Service) ResolveEffectivePermissions(ctx context.Context, tenantID, userID int64) (EffectivePermissions, error) {
	return s.cache.Fetch(ctx, tenantID, userID, func(ctx context.Context) (EffectivePermissions, error) {
		return s.resolve(ctx, tenantID, userID)
	})
}

func (s *Service) resolve(ctx context.Context, tenantID, userID int64) (EffectivePermissions, error) {
	out := EffectivePermissions{Modules: map[string]Flags{}, Roles: []RoleRef{}}
	roles, err := s.repo.UserRoles(ctx, tenantID, userID)
	if err != nil {
		return out, fmt.Errorf("load user roles: %w", err)
	}
	if len(roles) == 0 {
		return out, nil
	}
	out.Roles = roles
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	rows, err := s.repo.RolePermissions(ctx, ids)
	if err != nil {
		return out, fmt.Errorf("load role permissions: %w", err)
	}
	for _, row := range rows {
		out.Modules[row.Module] = out.Modules[row.Module].Or(row.Flags)
	}
	return out, nil
}

// SeedDefaultPermissions writes the name-derived default rows for every
// active module. Existing rows are overwritten.
func (s *Service) SeedDefaultPermissions(ctx context.Context, roleID int64, roleName string) error {
	keys, err := s.modules.ActiveKeys(ctx)
	if err != nil {
		return fmt.Errorf("%w: list modules: %v", shared.ErrDependency, err)
	}
	if len(keys) == 0 {
		s.logger.Warn("no active modules to seed", slog.Int64("role_id", roleID))
		return nil
	}
	perms := DefaultPermissions(roleName, keys)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		for _, p := range perms {
			if err := tx.UpsertPermission(ctx, roleID, p); err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Module, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	s.logger.Info("seeded role permissions",
		slog.Int64("role_id", roleID),
		slog.String("role", roleName),
		slog.Int("modules", len(perms)))
	return nil
}

// Invalidate drops every cached effective permission set.
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
