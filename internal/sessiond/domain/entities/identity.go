package entities

import "strings"

// Имена роли администратора, которые отдает сервер.
const (
	RoleAdmin         = "ADMIN"
	RoleAdminPrefixed = "ROLE_ADMIN"
)

// Identity - ответ /me.
type Identity struct {
	ID        int64    `json:"id,omitempty"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName,omitempty"`
	Role      string   `json:"role,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
}

// IsAdmin проверяет роль администратора в поле role или в списке roles.
func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	if isAdminRole(i.Role) {
		return true
	}
	for _, r := range i.Roles {
		if isAdminRole(r) {
			return true
		}
	}
	return false
}

func isAdminRole(role string) bool {
	role = strings.TrimSpace(role)
	return role == RoleAdmin || role == RoleAdminPrefixed
}
