package session

import (
	"sync"

	"github.com/code0ns/eventually/internal/domain"
	"log/slog"
)

// Store хранит личность текущей сессии и уведомляет слушателей о её смене
// (вход, выход, внешняя правка роли). Единственные пути записи — результат
// проверки учётных данных и события по коллекции users.
type Store struct {
	mu        sync.Mutex
	identity  domain.Identity
	ok        bool
	nextID    int
	listeners map[int]func(domain.Identity, bool)
	logger    *slog.Logger
}

// NewStore создаёт пустое хранилище сессии.
func NewStore(logger *slog.Logger) *Store {
	return &Store{listeners: make(map[int]func(domain.Identity, bool)), logger: logger}
}

// Current возвращает личность текущей сессии; false — сессии нет.
func (s *Store) Current() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.ok
}

// Set сохраняет личность. Личность с нераспознанной ролью равнозначна
// отсутствию сессии: хранить её как аутентифицированную запрещено.
func (s *Store) Set(id domain.Identity) {
	if !id.Role.Valid() {
		s.logger.Error("Identity with unknown role rejected", "id", id.ID, "role", id.Role)
		s.Clear()
		return
	}
	s.mu.Lock()
	changed := !s.ok || s.identity != id
	s.identity = id
	s.ok = true
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		s.logger.Info("Session identity set", "id", id.ID, "role", id.Role)
		for _, fn := range listeners {
			fn(id, true)
		}
	}
}

// Clear завершает сессию.
func (s *Store) Clear() {
	s.mu.Lock()
	changed := s.ok
	s.identity = domain.Identity{}
	s.ok = false
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		s.logger.Info("Session cleared")
		for _, fn := range listeners {
			fn(domain.Identity{}, false)
		}
	}
}

// OnChange регистрирует слушателя смены личности или роли. Возвращённая
// функция снимает регистрацию; владелец слушателя обязан вызвать её, когда
// представление размонтируется.
func (s *Store) OnChange(fn func(domain.Identity, bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// snapshotListeners копирует слушателей для вызова вне блокировки.
// Вызывается под s.mu.
func (s *Store) snapshotListeners() []func(domain.Identity, bool) {
	out := make([]func(domain.Identity, bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
