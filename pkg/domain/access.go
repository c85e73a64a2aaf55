package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is an organization role. Roles are totally ordered.
type Role int

// Roles in ascending order of privilege.
const (
	RoleUnknown Role = iota
	RoleMember
	RoleGeneralOfficer
	RoleExecutiveOfficer
	RoleAdministrator
)

// Minimum roles required by engine operations.
const (
	MinViewRole      = RoleMember
	MinInventoryRole = RoleMember
	MinAdjustRole    = RoleGeneralOfficer
	MinEditRole      = RoleGeneralOfficer
	MinElevatedRole  = RoleExecutiveOfficer
)

var roleNames = map[Role]string{
	RoleMember:           "Member",
	RoleGeneralOfficer:   "General Officers",
	RoleExecutiveOfficer: "Executive Officers",
	RoleAdministrator:    "Administrator",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

// ParseRole accepts the display names plus compact aliases
// (member, general_officer, executive_officer, admin).
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "member":
		return RoleMember, nil
	case "general_officer", "general_officers":
		return RoleGeneralOfficer, nil
	case "executive_officer", "executive_officers":
		return RoleExecutiveOfficer, nil
	case "administrator", "admin":
		return RoleAdministrator, nil
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// MarshalJSON encodes the role by display name.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role from any name accepted by ParseRole.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UnmarshalYAML decodes a role from a YAML scalar.
func (r *Role) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleMeets reports whether candidate is at least minimum.
func RoleMeets(candidate, minimum Role) bool {
	return candidate != RoleUnknown && candidate >= minimum
}

// CallerContext identifies the caller of an engine operation. It is passed
// explicitly to every operation.
type CallerContext struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   Role   `json:"role"`
}

// Authenticated reports whether the caller carries a user identity.
func (c CallerContext) Authenticated() bool {
	return strings.TrimSpace(c.UserID) != "" && strings.TrimSpace(c.OrgID) != ""
}

// RequireRole checks that caller may act on orgID with at least minimum.
// Callers from another organization get NotFound so foreign ids stay hidden.
func RequireRole(caller CallerContext, orgID string, minimum Role) error {
	if !caller.Authenticated() {
		return &Error{Code: CodeUnauthorized, Message: "caller is not authenticated"}
	}
	if orgID != "" && caller.OrgID != orgID {
		return &Error{Code: CodeNotFound, Message: "organization " + orgID + " not found", ID: orgID}
	}
	if !RoleMeets(caller.Role, minimum) {
		return &Error{Code: CodeForbidden, Message: "role " + caller.Role.String() + " below required " + minimum.String()}
	}
	return nil
}
