// Package identity resolves request identities into engine callers.
package identity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"binmap/pkg/domain"
)

// Directory maps a user and the organization they act in to a caller.
type Directory interface {
	Resolve(ctx context.Context, userID, orgID string) (domain.CallerContext, error)
}

// Membership grants a role in one organization.
type Membership struct {
	Org  string      `yaml:"org"`
	Role domain.Role `yaml:"role"`
}

// User is one directory entry.
type User struct {
	ID          string       `yaml:"id"`
	Memberships []Membership `yaml:"memberships"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// StaticDirectory is an in-memory directory, usually loaded from YAML.
type StaticDirectory struct {
	mu    sync.RWMutex
	roles map[string]map[string]domain.Role
}

var _ Directory = (*StaticDirectory)(nil)

// NewStaticDirectory indexes users by id and organization.
func NewStaticDirectory(users ...User) *StaticDirectory {
	d := &StaticDirectory{roles: make(map[string]map[string]domain.Role)}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// LoadFile reads a users file of the form
//
//	users:
//	  - id: alice
//	    memberships:
//	      - org: org-1
//	        role: general_officer
func LoadFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	for _, u := range f.Users {
		if strings.TrimSpace(u.ID) == "" {
			return nil, fmt.Errorf("parse users file %s: user without id", path)
		}
	}
	return NewStaticDirectory(f.Users...), nil
}

// Put adds or replaces a user.
func (d *StaticDirectory) Put(u User) {
	orgs := make(map[string]domain.Role, len(u.Memberships))
	for _, m := range u.Memberships {
		orgs[m.Org] = m.Role
	}
	d.mu.Lock()
	d.roles[u.ID] = orgs
	d.mu.Unlock()
}

// Resolve implements Directory. Unknown users and users outside orgID are
// unauthorized.
func (d *StaticDirectory) Resolve(_ context.Context, userID, orgID string) (domain.CallerContext, error) {
	userID, orgID = strings.TrimSpace(userID), strings.TrimSpace(orgID)
	if userID == "" || orgID == "" {
		return domain.CallerContext{}, domain.Errorf(domain.CodeUnauthorized, "missing user or organization")
	}
	d.mu.RLock()
	orgs, ok := d.roles[userID]
	role, member := orgs[orgID]
	d.mu.RUnlock()
	if !ok || !member {
		return domain.CallerContext{}, domain.Errorf(domain.CodeUnauthorized, "user %s is not a member of %s", userID, orgID)
	}
	return domain.CallerContext{UserID: userID, OrgID: orgID, Role: role}, nil
}
