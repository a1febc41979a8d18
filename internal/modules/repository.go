package modules

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
)

// Repository reads and seeds the modules table.
type Repository interface {
	ListActive(ctx context.Context, filter *ActorType) ([]Module, error)
	Upsert(ctx context.Context, module Module) error
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

func (r *repository) ListActive(ctx context.Context, filter *ActorType) ([]Module, error) {
	query := `SELECT module_key, module_name, module_type, is_active, sort_order, created_at
		FROM modules WHERE is_active = TRUE`
	var args []any
	if filter != nil {
		query += ` AND (module_type = $1 OR module_type = 'ALL')`
		args = append(args, string(*filter))
	}
	query += ` ORDER BY sort_order, module_name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("modules: list: %w", err)
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		var actorType string
		if err := rows.Scan(&m.Key, &m.DisplayName, &actorType, &m.Active, &m.SortOrder, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ActorType = ActorType(actorType)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, m Module) error {
	_, err := r.db.Exec(ctx, `INSERT INTO modules (module_key, module_name, module_type, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (module_key) DO UPDATE SET
			module_name = EXCLUDED.module_name,
			module_type = EXCLUDED.module_type,
			is_active = EXCLUDED.is_active,
			sort_order = EXCLUDED.sort_order`,
		m.Key, m.DisplayName, string(m.ActorType), m.Active, m.SortOrder)
	if err != nil {
		return fmt.Errorf("modules: upsert %s: %w", m.Key, err)
	}
	return nil
}
