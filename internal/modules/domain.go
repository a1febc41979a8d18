package modules

import (
	"strings"
	"time"
)

// ActorType restricts which kind of user a module applies to.
type ActorType string

const (
	ActorAdmin    ActorType = "ADMIN"
	ActorEmployee ActorType = "EMPLOYEE"
	ActorClient   ActorType = "CLIENT"
	ActorAll      ActorType = "ALL"
)

// ParseActorType returns nil for empty input or ALL, meaning no filter.
func ParseActorType(raw string) (*ActorType, bool) {
	t := ActorType(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case "", ActorAll:
		return nil, true
	case ActorAdmin, ActorEmployee, ActorClient:
		return &t, true
	}
	return nil, false
}

// Module is a permissionable feature area.
type Module struct {
	Key         string    `json:"module_key"`
	DisplayName string    `json:"module_name"`
	ActorType   ActorType `json:"module_type"`
	Active      bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Applies reports whether the module is visible to the given actor type filter.
func (m Module) Applies(filter *ActorType) bool {
	if filter == nil {
		return true
	}
	return m.ActorType == ActorAll || m.ActorType == *filter
}
