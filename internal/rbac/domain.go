package rbac

// Capability is one of the four per-module flags.
type Capability string

const (
	CapView   Capability = "view"
	CapAdd    Capability = "add"
	CapEdit   Capability = "edit"
	CapDelete Capability = "delete"
)

// Flags holds the four capabilities for a module.
type Flags struct {
	CanView   bool `json:"can_view"`
	CanAdd    bool `json:"can_add"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// Has reports whether the capability is granted.
func (f Flags) Has(c Capability) bool {
	switch c {
	case CapView:
		return f.CanView
	case CapAdd:
		return f.CanAdd
	case CapEdit:
		return f.CanEdit
	case CapDelete:
		return f.CanDelete
	}
	return false
}

// Or returns the union of both flag sets.
func (f Flags) Or(other Flags) Flags {
	return Flags{
		CanView:   f.CanView || other.CanView,
		CanAdd:    f.CanAdd || other.CanAdd,
		CanEdit:   f.CanEdit || other.CanEdit,
		CanDelete: f.CanDelete || other.CanDelete,
	}
}

// Permission is one row of the matrix for a role.
type Permission struct {
	Module string `json:"module"`
	Flags
}

// RolePermission is a permission row tagged with its role.
type RolePermission struct {
	RoleID int64
	Permission
}

// RoleRef describes a role held by a user.
type RoleRef struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"company_id"`
	Name     string `json:"role_name"`
	IsSystem bool   `json:"is_system_role"`
}

// EffectivePermissions is the OR of every assigned role's flags, keyed by module.
type EffectivePermissions struct {
	Modules map[string]Flags `json:"permissions"`
	Roles   []RoleRef        `json:"roles"`
}

// Allows reports whether the capability is granted on module.
func (e EffectivePermissions) Allows(module string, c Capability) bool {
	return e.Modules[module].Has(c)
}
