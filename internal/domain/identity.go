package domain

// Identity — аутентифицированный пользователь и его роль. Запись создаётся
// при регистрации; изменяемое поле только Role (правит администратор).
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
