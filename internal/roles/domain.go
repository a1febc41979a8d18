package roles

import "time"

// Role names seeded for every tenant. All but MANAGER are system roles.
const (
	RoleAdmin    = "ADMIN"
	RoleEmployee = "EMPLOYEE"
	RoleClient   = "CLIENT"
	RoleManager  = "MANAGER"
)

// Role represents a tenant role.
type Role struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"company_id"`
	Name        string    `json:"role_name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system_role"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleUser is a user holding a role.
type RoleUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

// CreateRoleRequest is the payload for POST /roles.
type CreateRoleRequest struct {
	Name        string `json:"role_name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// UpdateRoleRequest is the payload for PUT /roles/{id}.
type UpdateRoleRequest struct {
	Name        string `json:"role_name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// AssignRequest is the payload for POST /roles/{id}/assign.
type AssignRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}
