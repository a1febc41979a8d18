package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Activity represents a record stored in activities.
type Activity struct {
	ID       int64          `json:"id"`
	TenantID int64          `json:"company_id"`
	ActorID  int64          `json:"actor_id"`
	Module   string         `json:"module"`
	ModuleID int64          `json:"module_id"`
	Action   string         `json:"action"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"occurred_at"`
}

// ActivityFilter narrows an activity listing. Zero values match everything.
type ActivityFilter struct {
	Module   string
	ModuleID int64
	Page     int
	PerPage  int
}

// ActivityRecorder is implemented by anything that can persist activities.
type ActivityRecorder interface {
	Record(ctx context.Context, activity Activity) error
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// ActivityLogger writes and reads records in activities.
type ActivityLogger struct {
	db     querier
	logger *slog.Logger
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(db querier, logger *slog.Logger) *ActivityLogger {
	return &ActivityLogger{db: db, logger: logger}
}

// Record persists the activity.
func (l *ActivityLogger) Record(ctx context.Context, activity Activity) error {
	if l == nil || l.db == nil {
		return errors.New("activity logger not initialised")
	}
	if activity.Module == "" || activity.Action == "" {
		return errors.New("activity requires module and action")
	}
	metaJSON, err := json.Marshal(activity.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !activity.At.IsZero() {
		at = &activity.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO activities (company_id, actor_id, module, module_id, action, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		activity.TenantID, activity.ActorID, activity.Module, activity.ModuleID, activity.Action, metaJSON, at)
	return err
}

// List returns the tenant's activities, newest first, with the total match count.
func (l *ActivityLogger) List(ctx context.Context, tenantID int64, filter ActivityFilter) ([]Activity, int, error) {
	if l == nil || l.db == nil {
		return nil, 0, errors.New("activity logger not initialised")
	}
	clause, args := activityWhere(tenantID, filter)

	var total int
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM activities WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	page, perPage := clampPage(filter.Page, filter.PerPage)
	args = append(args, perPage, Offset(page, perPage))
	rows, err := l.db.Query(ctx, fmt.Sprintf(`SELECT id, company_id, actor_id, module, module_id, action, meta, occurred_at
		FROM activities WHERE %s
		ORDER BY occurred_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()
	out := []Activity{}
	for rows.Next() {
		var (
			a    Activity
			meta []byte
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ActorID, &a.Module, &a.ModuleID, &a.Action, &meta, &a.At); err != nil {
			return nil, 0, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Meta); err != nil {
				return nil, 0, fmt.Errorf("decode activity %d meta: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func activityWhere(tenantID int64, filter ActivityFilter) (string, []any) {
	where := []string{"company_id = $1"}
	args := []any{tenantID}
	if filter.Module != "" {
		args = append(args, filter.Module)
		where = append(where, fmt.Sprintf("module = $%d", len(args)))
	}
	if filter.ModuleID > 0 {
		args = append(args, filter.ModuleID)
		where = append(where, fmt.Sprintf("module_id = $%d", len(args)))
	}
	return strings.Join(where, " AND "), args
}

// RecordQuietly stores the activity and only logs failures.
func RecordQuietly(ctx context.Context, recorder ActivityRecorder, logger *slog.Logger, activity Activity) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, activity); err != nil && logger != nil {
		logger.Warn("record activity",
			slog.String("module", activity.Module),
			slog.String("action", activity.Action),
			slog.Any("error", err))
	}
}
