package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Repository persists the permission matrix.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetRole(ctx context.Context, tenantID, roleID int64) (RoleRef, error)
	UpsertPermission(ctx context.Context, roleID int64, perm Permission) error
	ListPermissions(ctx context.Context, roleID int64) ([]Permission, error)
	UserRoles(ctx context.Context, tenantID, userID int64) ([]RoleRef, error)
	RolePermissions(ctx context.Context, roleIDs []int64) ([]RolePermission, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetRole(ctx context.Context, tenantID, roleID int64) (RoleRef, error) {
	var role RoleRef
	err := r.db.QueryRow(ctx, `SELECT id, company_id, role_name, is_system_role
		FROM roles WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`, roleID, tenantID).
		Scan(&role.ID, &role.TenantID, &role.Name, &role.IsSystem)
	if err != nil {
		if shared.IsNoRows(err) {
			return RoleRef{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return RoleRef{}, err
	}
	return role, nil
}

func (r *repository) UpsertPermission(ctx context.Context, roleID int64, perm Permission) error {
	_, err := r.db.Exec(ctx, `INSERT INTO role_permissions (role_id, module, can_view, can_add, can_edit, can_delete)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (role_id, module) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_add = EXCLUDED.can_add,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			updated_at = NOW()`,
		roleID, perm.Module, perm.CanView, perm.CanAdd, perm.CanEdit, perm.CanDelete)
	return err
}

func (r *repository) ListPermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT module, can_view, can_add, can_edit, can_delete
		FROM role_permissions WHERE role_id = $1 ORDER BY module`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Module, &p.CanView, &p.CanAdd, &p.CanEdit, &p.CanDelete); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *repository) UserRoles(ctx context.Context, tenantID, userID int64) ([]RoleRef, error) {
	rows, err := r.db.Query(ctx, `SELECT r.id, r.company_id, r.role_name, r.is_system_role
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.company_id = $2 AND r.is_deleted = FALSE
		ORDER BY r.role_name`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleRef
	for rows.Next() {
		var role RoleRef
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.IsSystem); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) RolePermissions(ctx context.Context, roleIDs []int64) ([]RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT role_id, module, can_view, can_add, can_edit, can_delete
		FROM role_permissions WHERE role_id = ANY($1) ORDER BY module, role_id`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RolePermission
	for rows.Next() {
		var rp RolePermission
		if err := rows.Scan(&rp.RoleID, &rp.Module, &rp.CanView, &rp.CanAdd, &rp.CanEdit, &rp.CanDelete); err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}
