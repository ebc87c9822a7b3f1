package domain

import "errors"

var (
	// ErrUnauthenticated — сессия отсутствует либо личность не разрешилась.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnknownRole — роль вне закрытого набора; авторизация запрещается.
	ErrUnknownRole = errors.New("unknown role")
	// ErrInvalidCredentials — неверная пара email/пароль.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound — аутентификация прошла, но записи пользователя нет.
	ErrUserNotFound = errors.New("user not found in database")
	// ErrNotFound — запрошенная запись отсутствует.
	ErrNotFound = errors.New("not found")
)
