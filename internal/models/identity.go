package models

import (
	"greendrake/marketdesk/internal/utils"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the request-scoped caller. A nil *Identity is an anonymous
// caller. ThreadKey carries the capability handed to anonymous inquirers
// and is only meaningful for the thread it was issued for.
type Identity struct {
	UserID    utils.SixID
	Name      string
	Email     string
	Role      Role
	ThreadKey string
}

// Authenticated reports whether the identity carries a user id.
func (i *Identity) Authenticated() bool {
	return i != nil && !i.UserID.IsZero()
}

func (i *Identity) IsAdmin() bool {
	return i.Authenticated() && i.Role == RoleAdmin
}

// Present reports whether the caller presented any credential at all.
func (i *Identity) Present() bool {
	return i.Authenticated() || (i != nil && i.ThreadKey != "")
}
