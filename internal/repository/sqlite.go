package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/code0ns/eventually/internal/domain"
)

// Store определяет интерфейс табличного хранилища, которым пользуются сервисы.
type Store interface {
	Init() error

	CreateUser(u domain.Identity, passwordHash string) error
	UserByEmail(email string) (domain.Identity, string, error)
	UserByID(id string) (domain.Identity, error)
	ListUsers() ([]domain.Identity, error)
	UpdateUserRole(id string, role domain.Role) (domain.Identity, error)

	CreateRequest(title, date, ownerID string) (domain.EventRequest, error)
	ListRequests(f RequestFilter) ([]domain.EventRequest, error)
	TransitionRequest(id int64, to domain.Status) (domain.EventRequest, error)

	CreateMessage(role domain.Role, body string) (domain.Message, error)
	MarkMessageRead(id int64) (msg domain.Message, prev domain.Message, err error)
	UnreadCount(role domain.Role) (int, error)
}

// RequestFilter задаёт предикат выборки заявок; нулевые поля не фильтруют.
type RequestFilter struct {
	Status  domain.Status
	OwnerID string
}

// SQLiteRepository реализует хранилище на базе SQLite.
type SQLiteRepository struct {
	DB *sql.DB
}

// NewSQLiteRepository создаёт новый экземпляр репозитория.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

// Init создаёт таблицы, если их ещё нет.
func (repo *SQLiteRepository) Init() error {
	query := `
        CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL
        );
        CREATE TABLE IF NOT EXISTS event_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            date TEXT NOT NULL,
            status TEXT NOT NULL,
            owner_id TEXT NOT NULL
        );
        CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            recipient_role TEXT NOT NULL,
            body TEXT NOT NULL,
            is_read INTEGER NOT NULL DEFAULT 0
        );
    `
	_, err := repo.DB.Exec(query)
	return err
}

// CreateUser сохраняет нового пользователя вместе с хэшем пароля.
func (repo *SQLiteRepository) CreateUser(u domain.Identity, passwordHash string) error {
	query := `INSERT INTO users (id, name, email, password_hash, role) VALUES (?, ?, ?, ?, ?);`
	_, err := repo.DB.Exec(query, u.ID, u.Name, u.Email, passwordHash, string(u.Role))
	return err
}

// UserByEmail возвращает пользователя и хэш пароля по email.
func (repo *SQLiteRepository) UserByEmail(email string) (domain.Identity, string, error) {
	var u domain.Identity
	var hash, role string
	query := `SELECT id, name, email, password_hash, role FROM users WHERE email = ?;`
	err := repo.DB.QueryRow(query, email).Scan(&u.ID, &u.Name, &u.Email, &hash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, "", domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, "", err
	}
	u.Role = domain.Role(role)
	return u, hash, nil
}

// UserByID возвращает пользователя по идентификатору.
func (repo *SQLiteRepository) UserByID(id string) (domain.Identity, error) {
	var u domain.Identity
	var role string
	query := `SELECT id, name, email, role FROM users WHERE id = ?;`
	err := repo.DB.QueryRow(query, id).Scan(&u.ID, &u.Name, &u.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

// ListUsers возвращает всех пользователей (админский обзор).
func (repo *SQLiteRepository) ListUsers() ([]domain.Identity, error) {
	rows, err := repo.DB.Query(`SELECT id, name, email, role FROM users ORDER BY email;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.Identity
	for rows.Next() {
		var u domain.Identity
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role); err != nil {
			return nil, err
		}
		u.Role = domain.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole меняет роль пользователя и возвращает обновлённую запись.
func (repo *SQLiteRepository) UpdateUserRole(id string, role domain.Role) (domain.Identity, error) {
	res, err := repo.DB.Exec(`UPDATE users SET role = ? WHERE id = ?;`, string(role), id)
	if err != nil {
		return domain.Identity{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	return repo.UserByID(id)
}

// CreateRequest сохраняет новую заявку; начальный статус всегда Open.
func (repo *SQLiteRepository) CreateRequest(title, date, ownerID string) (domain.EventRequest, error) {
	res, err := repo.DB.Exec(
		`INSERT INTO event_requests (title, date, status, owner_id) VALUES (?, ?, ?, ?);`,
		title, date, string(domain.StatusOpen), ownerID,
	)
	if err != nil {
		return domain.EventRequest{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.EventRequest{}, err
	}
	return domain.EventRequest{
		ID:      id,
		Title:   title,
		Date:    date,
		Status:  domain.StatusOpen,
		OwnerID: ownerID,
	}, nil
}

// ListRequests выбирает заявки по фильтру, новые в начале.
func (repo *SQLiteRepository) ListRequests(f RequestFilter) ([]domain.EventRequest, error) {
	query := `SELECT id, title, date, status, owner_id FROM event_requests`
	var args []any
	switch {
	case f.Status != "" && f.OwnerID != "":
		query += ` WHERE status = ? AND owner_id = ?`
		args = append(args, string(f.Status), f.OwnerID)
	case f.Status != "":
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	case f.OwnerID != "":
		query += ` WHERE owner_id = ?`
		args = append(args, f.OwnerID)
	}
	query += ` ORDER BY id DESC;`

	rows, err := repo.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []domain.EventRequest
	for rows.Next() {
		var r domain.EventRequest
		var status string
		if err := rows.Scan(&r.ID, &r.Title, &r.Date, &status, &r.OwnerID); err != nil {
			return nil, err
		}
		r.Status = domain.Status(status)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// TransitionRequest переводит заявку в новый статус. Допустимость перехода
// проверяется внутри транзакции: конечные состояния менять нельзя, попытка
// возвращает InvalidTransitionError, а не игнорируется.
func (repo *SQLiteRepository) TransitionRequest(id int64, to domain.Status) (domain.EventRequest, error) {
	tx, err := repo.DB.Begin()
	if err != nil {
		return domain.EventRequest{}, err
	}
	defer tx.Rollback()

	var r domain.EventRequest
	var status string
	err = tx.QueryRow(
		`SELECT id, title, date, status, owner_id FROM event_requests WHERE id = ?;`, id,
	).Scan(&r.ID, &r.Title, &r.Date, &status, &r.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EventRequest{}, fmt.Errorf("event request %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.EventRequest{}, err
	}
	r.Status = domain.Status(status)

	if !r.Status.CanTransition(to) {
		return domain.EventRequest{}, &domain.InvalidTransitionError{From: r.Status, To: to}
	}
	if _, err := tx.Exec(`UPDATE event_requests SET status = ? WHERE id = ?;`, string(to), id); err != nil {
		return domain.EventRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.EventRequest{}, err
	}
	r.Status = to
	return r, nil
}

// CreateMessage сохраняет новое непрочитанное сообщение для роли.
func (repo *SQLiteRepository) CreateMessage(role domain.Role, body string) (domain.Message, error) {
	res, err := repo.DB.Exec(
		`INSERT INTO messages (recipient_role, body, is_read) VALUES (?, ?, 0);`,
		string(role), body,
	)
	if err != nil {
		return domain.Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{ID: id, RecipientRole: role, Body: body, IsRead: false}, nil
}

// MarkMessageRead помечает сообщение прочитанным и возвращает новую и
// предыдущую версии записи (предыдущая нужна push-каналу).
func (repo *SQLiteRepository) MarkMessageRead(id int64) (domain.Message, domain.Message, error) {
	tx, err := repo.DB.Begin()
	if err != nil {
		return domain.Message{}, domain.Message{}, err
	}
	defer tx.Rollback()

	var m domain.Message
	var role string
	var isRead int
	err = tx.QueryRow(
		`SELECT id, recipient_role, body, is_read FROM messages WHERE id = ?;`, id,
	).Scan(&m.ID, &role, &m.Body, &isRead)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, domain.Message{}, fmt.Errorf("message %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, domain.Message{}, err
	}
	m.RecipientRole = domain.Role(role)
	m.IsRead = isRead != 0

	prev := m
	if _, err := tx.Exec(`UPDATE messages SET is_read = 1 WHERE id = ?;`, id); err != nil {
		return domain.Message{}, domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, domain.Message{}, err
	}
	m.IsRead = true
	return m, prev, nil
}

// UnreadCount считает непрочитанные сообщения, адресованные роли.
func (repo *SQLiteRepository) UnreadCount(role domain.Role) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE recipient_role = ? AND is_read = 0;`
	if err := repo.DB.QueryRow(query, string(role)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
