package domain

import (
	"context"
	"slices"
)

// AuthRole is the role stored on a user record. Only two exist: admins
// manage users, config and logs; users chat.
type AuthRole string

const (
	AuthRoleAdmin AuthRole = "admin"
	AuthRoleUser  AuthRole = "user"
)

// Permission names one guarded gateway action.
type Permission string

const (
	PermChatSend    Permission = "chat:send"
	PermProfileRead Permission = "profile:read"
	PermAdminUsers  Permission = "admin:users"
	PermAdminConfig Permission = "admin:config"
	PermAdminLogs   Permission = "admin:logs"
	PermAdminStatus Permission = "admin:status"
)

var userGrants = []Permission{PermChatSend, PermProfileRead}

var grants = map[AuthRole][]Permission{
	AuthRoleUser:  userGrants,
	AuthRoleAdmin: append(slices.Clone(userGrants), PermAdminUsers, PermAdminConfig, PermAdminLogs, PermAdminStatus),
}

// Valid reports whether r is a known role.
func (r AuthRole) Valid() bool {
	_, ok := grants[r]
	return ok
}

// Can reports whether r is granted perm. Unknown roles are granted nothing.
func (r AuthRole) Can(perm Permission) bool {
	return slices.Contains(grants[r], perm)
}

// Authorizer checks whether the caller has a specific permission.
type Authorizer interface {
	Authorize(ctx context.Context, roles []AuthRole, perm Permission) error
}
