package models

import (
	"time"
)

// Profile is one credential record: a named chat profile or the
// administrator account. Names are unique case-insensitively.
type Profile struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Salt              string     `json:"salt"`
	PasswordHash      string     `json:"password_hash"`
	Role              Role       `json:"role"`
	IsAdmin           bool       `json:"is_admin"`
	Disabled          bool       `json:"disabled"`
	CreatedAt         time.Time  `json:"created_at"`
	PasswordChangedAt time.Time  `json:"password_changed_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

// EffectiveRole resolves the admin flag: a profile carrying IsAdmin is
// admin-equivalent regardless of its stored role.
func (p *Profile) EffectiveRole() Role {
	if p.IsAdmin {
		return RoleAdmin
	}
	return p.Role
}
