package domain

import "fmt"

// Role определяет класс пользователя: видимость заявок на дашборде и
// допустимые действия зависят только от роли.
type Role string

const (
	RoleClient Role = "client"
	RoleAgency Role = "agency"
	RoleAdmin  Role = "admin"
)

// ParseRole преобразует строку в Role. Нераспознанная роль — ошибка:
// авторизация по неизвестной роли запрещена (fail closed).
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleAgency, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Valid сообщает, входит ли роль в закрытый набор.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}
