package roles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Repository provides role persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetRole(ctx context.Context, tenantID, roleID int64) (Role, error)
	// LockRole takes an exclusive row lock on a live role; ShareLockRole
	// takes a shared one. Both block until the holder's transaction ends.
	LockRole(ctx context.Context, tenantID, roleID int64) (Role, error)
	ShareLockRole(ctx context.Context, tenantID, roleID int64) (Role, error)
	NameTaken(ctx context.Context, tenantID int64, name string, excludeID int64) (bool, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, tenantID, roleID int64, name, description string) (Role, error)
	SoftDeleteRole(ctx context.Context, tenantID, roleID int64) error
	CountAssignedUsers(ctx context.Context, roleID int64) (int, error)
	ListRoles(ctx context.Context, tenantID int64) ([]Role, error)
	UserInTenant(ctx context.Context, tenantID, userID int64) (bool, error)
	AssignUser(ctx context.Context, userID, roleID int64) error
	UnassignUser(ctx context.Context, userID, roleID int64) error
	ListUsers(ctx context.Context, tenantID, roleID int64) ([]RoleUser, error)
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

const roleColumns = `r.id, r.company_id, r.role_name, COALESCE(r.description, ''), r.is_system_role, r.created_at, r.updated_at`

func scanRole(row pgx.Row, extra ...any) (Role, error) {
	var role Role
	dest := append([]any{&role.ID, &role.TenantID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt}, extra...)
	err := row.Scan(dest...)
	return role, err
}

func (r *repository) GetRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	var count int
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+`,
			(SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = r.id)
		FROM roles r WHERE r.id = $1 AND r.company_id = $2 AND r.is_deleted = FALSE`, roleID, tenantID), &count)
	if err != nil {
		if shared.IsNoRows(err) {
			return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return Role{}, err
	}
	role.UserCount = count
	return role, nil
}

func (r *repository) LockRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	return r.lockRole(ctx, tenantID, roleID, "FOR UPDATE")
}

func (r *repository) ShareLockRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	return r.lockRole(ctx, tenantID, roleID, "FOR SHARE")
}

func (r *repository) lockRole(ctx context.Context, tenantID, roleID int64, clause string) (Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+`
		FROM roles r WHERE r.id = $1 AND r.company_id = $2 AND r.is_deleted = FALSE `+clause, roleID, tenantID))
	if err != nil {
		if shared.IsNoRows(err) {
			return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return Role{}, err
	}
	return role, nil
}

func (r *repository) NameTaken(ctx context.Context, tenantID int64, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM roles
		WHERE company_id = $1 AND role_name = $2 AND id <> $3 AND is_deleted = FALSE)`,
		tenantID, name, excludeID).Scan(&exists)
	return exists, err
}

func (r *repository) InsertRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.db.QueryRow(ctx, `INSERT INTO roles AS r (company_id, role_name, description, is_system_role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+roleColumns, role.TenantID, role.Name, role.Description, role.IsSystem))
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, role.Name)
		}
		return Role{}, err
	}
	return created, nil
}

func (r *repository) UpdateRole(ctx context.Context, tenantID, roleID int64, name, description string) (Role, error) {
	updated, err := scanRole(r.db.QueryRow(ctx, `UPDATE roles AS r
		SET role_name = $3, description = $4, updated_at = NOW()
		WHERE r.id = $1 AND r.company_id = $2 AND r.is_deleted = FALSE
		RETURNING `+roleColumns, roleID, tenantID, name, description))
	if err != nil {
		switch {
		case shared.IsNoRows(err):
			return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		case shared.IsUniqueViolation(err):
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
		}
		return Role{}, err
	}
	return updated, nil
}

func (r *repository) SoftDeleteRole(ctx context.Context, tenantID, roleID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE roles SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`, roleID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
	}
	return nil
}

func (r *repository) CountAssignedUsers(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

func (r *repository) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+`, COUNT(ur.user_id)
		FROM roles r
		LEFT JOIN user_roles ur ON ur.role_id = r.id
		WHERE r.company_id = $1 AND r.is_deleted = FALSE
		GROUP BY r.id
		ORDER BY r.is_system_role DESC, r.role_name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Role{}
	for rows.Next() {
		var count int
		role, err := scanRole(rows, &count)
		if err != nil {
			return nil, err
		}
		role.UserCount = count
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *repository) UserInTenant(ctx context.Context, tenantID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM users WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE)`, userID, tenantID).Scan(&exists)
	return exists, err
}

func (r *repository) AssignUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}

func (r *repository) UnassignUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func (r *repository) ListUsers(ctx context.Context, tenantID, roleID int64) ([]RoleUser, error) {
	rows, err := r.db.Query(ctx, `SELECT u.id, u.name, u.email, u.user_type
		FROM user_roles ur
		JOIN users u ON u.id = ur.user_id
		WHERE ur.role_id = $1 AND u.company_id = $2 AND u.is_deleted = FALSE
		ORDER BY u.name`, roleID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RoleUser{}
	for rows.Next() {
		var u RoleUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.UserType); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
