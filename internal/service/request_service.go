package service

import (
	"fmt"

	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/repository"
	"log/slog"
)

// RequestService реализует операции над заявками и пользователями и
// публикует каждое изменение в push-канал.
type RequestService struct {
	repo   repository.Store
	feed   *FeedService
	logger *slog.Logger
}

// NewRequestService создаёт новый экземпляр сервиса.
func NewRequestService(repo repository.Store, feed *FeedService, logger *slog.Logger) *RequestService {
	return &RequestService{repo: repo, feed: feed, logger: logger}
}

// Create заводит новую заявку от имени владельца; статус всегда Open.
func (s *RequestService) Create(title, date, ownerID string) (domain.EventRequest, error) {
	s.feed.publishMu.Lock()
	defer s.feed.publishMu.Unlock()
	r, err := s.repo.CreateRequest(title, date, ownerID)
	if err != nil {
		return domain.EventRequest{}, fmt.Errorf("create request: %w", err)
	}
	s.feed.publishRecord("INSERT", domain.CollectionRequests, r, nil)
	s.logger.Info("Event request created", "id", r.ID, "owner", ownerID)
	return r, nil
}

// List выбирает заявки по фильтру.
func (s *RequestService) List(f repository.RequestFilter) ([]domain.EventRequest, error) {
	return s.repo.ListRequests(f)
}

// Transition переводит заявку в новый статус. Недопустимый переход
// возвращается вызывающему как InvalidTransitionError; локального изменения
// в этом случае не происходит и событие не публикуется.
func (s *RequestService) Transition(id int64, to domain.Status) (domain.EventRequest, error) {
	s.feed.publishMu.Lock()
	defer s.feed.publishMu.Unlock()
	r, err := s.repo.TransitionRequest(id, to)
	if err != nil {
		return domain.EventRequest{}, err
	}
	s.feed.publishRecord("UPDATE", domain.CollectionRequests, r, nil)
	s.logger.Info("Event request transitioned", "id", r.ID, "status", r.Status)
	return r, nil
}

// Users возвращает всех пользователей (админский обзор).
func (s *RequestService) Users() ([]domain.Identity, error) {
	return s.repo.ListUsers()
}

// UpdateUserRole меняет роль пользователя. Событие по коллекции users
// позволяет открытым вкладкам переоценить авторизацию без перезагрузки.
func (s *RequestService) UpdateUserRole(id string, role domain.Role) (domain.Identity, error) {
	if !role.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	s.feed.publishMu.Lock()
	defer s.feed.publishMu.Unlock()
	u, err := s.repo.UpdateUserRole(id, role)
	if err != nil {
		return domain.Identity{}, err
	}
	s.feed.publishRecord("UPDATE", domain.CollectionUsers, u, nil)
	s.logger.Info("User role updated", "id", u.ID, "role", u.Role)
	return u, nil
}
