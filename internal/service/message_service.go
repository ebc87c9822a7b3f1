package service

import (
	"fmt"

	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/repository"
	"log/slog"
)

// MessageService реализует операции над сообщениями ролей.
type MessageService struct {
	repo   repository.Store
	feed   *FeedService
	logger *slog.Logger
}

// NewMessageService создаёт новый экземпляр сервиса.
func NewMessageService(repo repository.Store, feed *FeedService, logger *slog.Logger) *MessageService {
	return &MessageService{repo: repo, feed: feed, logger: logger}
}

// Send создаёт непрочитанное сообщение для роли.
func (s *MessageService) Send(role domain.Role, body string) (domain.Message, error) {
	if !role.Valid() {
		return domain.Message{}, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	s.feed.publishMu.Lock()
	defer s.feed.publishMu.Unlock()
	m, err := s.repo.CreateMessage(role, body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	s.feed.publishRecord("INSERT", domain.CollectionMessages, m, nil)
	s.logger.Info("Message sent", "id", m.ID, "role", m.RecipientRole)
	return m, nil
}

// MarkRead помечает сообщение прочитанным. В событие попадает и предыдущая
// версия записи: по ней счётчики различают переход unread->read от
// повторного прочтения.
func (s *MessageService) MarkRead(id int64) (domain.Message, error) {
	s.feed.publishMu.Lock()
	defer s.feed.publishMu.Unlock()
	m, prev, err := s.repo.MarkMessageRead(id)
	if err != nil {
		return domain.Message{}, err
	}
	s.feed.publishRecord("UPDATE", domain.CollectionMessages, m, prev)
	s.logger.Info("Message marked read", "id", m.ID)
	return m, nil
}

// UnreadCount считает непрочитанные сообщения роли.
func (s *MessageService) UnreadCount(role domain.Role) (int, error) {
	return s.repo.UnreadCount(role)
}
