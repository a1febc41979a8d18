package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// PermissionSeeder seeds default permissions and drops cached resolutions.
type PermissionSeeder interface {
	SeedDefaultPermissions(ctx context.Context, roleID int64, roleName string) error
	Invalidate(ctx context.Context)
}

// Service handles role business logic.
type Service struct {
	repo     Repository
	seeder   PermissionSeeder
	activity shared.ActivityRecorder
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, seeder PermissionSeeder, activity shared.ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, seeder: seeder, activity: activity, logger: logger}
}

// ListRoles returns the tenant's roles, system roles first.
func (s *Service) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// GetRole returns a single non-deleted role.
func (s *Service) GetRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	return s.repo.GetRole(ctx, tenantID, roleID)
}

// CreateRole inserts a role and seeds its default permissions. Seeding
// failures are logged and do not fail the creation.
func (s *Service) CreateRole(ctx context.Context, actor shared.Actor, name, description string, isSystem bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	taken, err := s.repo.NameTaken(ctx, actor.TenantID, name, 0)
	if err != nil {
		return Role{}, fmt.Errorf("check role name: %w", err)
	}
	if taken {
		return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
	}
	role, err := s.repo.InsertRole(ctx, Role{
		TenantID:    actor.TenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsSystem:    isSystem,
	})
	if err != nil {
		return Role{}, err
	}
	if s.seeder != nil {
		if err := s.seeder.SeedDefaultPermissions(ctx, role.ID, role.Name); err != nil {
			s.logger.Warn("seed default permissions",
				slog.Int64("role_id", role.ID),
				slog.String("role", role.Name),
				slog.Any("error", err))
		}
	}
	s.record(ctx, actor, role.ID, "created", map[string]any{"role_name": role.Name, "is_system_role": isSystem})
	return role, nil
}

// RenameRole changes a non-system role's name and description.
func (s *Service) RenameRole(ctx context.Context, actor shared.Actor, roleID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	current, err := s.repo.GetRole(ctx, actor.TenantID, roleID)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, fmt.Errorf("%w: system role %q cannot be modified", shared.ErrValidation, current.Name)
	}
	taken, err := s.repo.NameTaken(ctx, actor.TenantID, name, roleID)
	if err != nil {
		return Role{}, fmt.Errorf("check role name: %w", err)
	}
	if taken {
		return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
	}
	updated, err := s.repo.UpdateRole(ctx, actor.TenantID, roleID, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	updated.UserCount = current.UserCount
	s.record(ctx, actor, roleID, "updated", map[string]any{"from": current.Name, "to": updated.Name})
	return updated, nil
}

// DeleteRole soft-deletes a role that is neither a system role nor assigned.
func (s *Service) DeleteRole(ctx context.Context, actor shared.Actor, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		// Assignments share-lock the role, so the count below cannot go
		// stale before the soft delete commits.
		role, err := tx.LockRole(ctx, actor.TenantID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: system role %q cannot be deleted", shared.ErrValidation, role.Name)
		}
		count, err := tx.CountAssignedUsers(ctx, roleID)
		if err != nil {
			return fmt.Errorf("count role users: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: cannot delete role: it is assigned to %d user(s); reassign users first", shared.ErrConflict, count)
		}
		return tx.SoftDeleteRole(ctx, actor.TenantID, roleID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, roleID, "deleted", nil)
	return nil
}

// AssignRole grants the role to the user. Repeating it is a no-op.
func (s *Service) AssignRole(ctx context.Context, actor shared.Actor, roleID, userID int64) error {
	if err := s.checkMembership(ctx, actor.TenantID, roleID, userID); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.ShareLockRole(ctx, actor.TenantID, roleID); err != nil {
			return err
		}
		if err := tx.AssignUser(ctx, userID, roleID); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, roleID, "assigned", map[string]any{"user_id": userID})
	return nil
}

// UnassignRole removes the role from the user. Removing an absent
// assignment succeeds.
func (s *Service) UnassignRole(ctx context.Context, actor shared.Actor, roleID, userID int64) error {
	if _, err := s.repo.GetRole(ctx, actor.TenantID, roleID); err != nil {
		return err
	}
	if err := s.repo.UnassignUser(ctx, userID, roleID); err != nil {
		return fmt.Errorf("unassign role: %w", err)
	}
	s.invalidate(ctx)
	s.record(ctx, actor, roleID, "unassigned", map[string]any{"user_id": userID})
	return nil
}

func (s *Service) checkMembership(ctx context.Context, tenantID, roleID, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id is required", shared.ErrValidation)
	}
	if _, err := s.repo.GetRole(ctx, tenantID, roleID); err != nil {
		return err
	}
	ok, err := s.repo.UserInTenant(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	return nil
}

// ListUsersForRole returns the tenant's users holding the role.
func (s *Service) ListUsersForRole(ctx context.Context, tenantID, roleID int64) ([]RoleUser, error) {
	if _, err := s.repo.GetRole(ctx, tenantID, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, tenantID, roleID)
}

type seedRole struct {
	name   string
	system bool
}

var tenantRoles = []seedRole{
	{RoleAdmin, true},
	{RoleEmployee, true},
	{RoleClient, true},
	{RoleManager, false},
}

// EnsureSystemRoles creates the built-in roles missing for a tenant, plus a
// default editable MANAGER role.
func (s *Service) EnsureSystemRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	actor := shared.SystemActor(tenantID)
	var created []Role
	for _, w := range tenantRoles {
		role, err := s.CreateRole(ctx, actor, w.name, "", w.system)
		if errors.Is(err, shared.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("ensure role %s: %w", w.name, err)
		}
		created = append(created, role)
	}
	return created, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.seeder != nil {
		s.seeder.Invalidate(ctx)
	}
}

func (s *Service) record(ctx context.Context, actor shared.Actor, roleID int64, action string, meta map[string]any) {
	shared.RecordQuietly(ctx, s.activity, s.logger, shared.Activity{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Module:   "roles",
		ModuleID: roleID,
		Action:   action,
		Meta:     meta,
	})
}
