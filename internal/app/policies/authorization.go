package policies

import "strings"

// CalendarAuthorizer decides whether a role may change calendar state.
type CalendarAuthorizer interface {
	CanEditCalendar(role string) bool
}

// DefaultEditorRoles are the roles allowed to edit when nothing is configured.
var DefaultEditorRoles = []string{"admin", "owner", "manager"}

// RoleAuthorizer grants edit rights to a fixed set of roles.
type RoleAuthorizer struct {
	roles map[string]struct{}
}

func NewRoleAuthorizer(roles ...string) RoleAuthorizer {
	if len(roles) == 0 {
		roles = DefaultEditorRoles
	}
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return RoleAuthorizer{roles: set}
}

func (a RoleAuthorizer) CanEditCalendar(role string) bool {
	_, ok := a.roles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

var _ CalendarAuthorizer = RoleAuthorizer{}
