package service

import (
	"encoding/json"
	"sync"

	"github.com/code0ns/eventually/internal/domain"
	"log/slog"
)

// Notifier определяет интерфейс для доставки сырого события подписчику
// (например, через WebSocket).
type Notifier interface {
	Notify(payload domain.PushPayload)
}

// Subscriber представляет подписку на push-канал. Пустая Collection означает
// подписку на все коллекции.
type Subscriber struct {
	Collection string
	Notifier   Notifier
}

// FeedService реализует push-канал сервера: регистрация подписчиков и
// рассылка событий изменений по коллекциям.
type FeedService struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger *slog.Logger

	// publishMu сериализует пары запись+публикация: события одной записи
	// обязаны уходить подписчикам в порядке фиксации в хранилище, поэтому
	// сервисы держат эту блокировку от начала записи до конца публикации.
	publishMu sync.Mutex
}

// NewFeedService создаёт новый экземпляр сервиса.
func NewFeedService(logger *slog.Logger) *FeedService {
	return &FeedService{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Register добавляет подписчика.
func (s *FeedService) Register(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
	s.logger.Info("Feed subscriber registered", "collection", sub.Collection)
}

// Unregister удаляет подписчика.
func (s *FeedService) Unregister(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
	s.logger.Info("Feed subscriber unregistered", "collection", sub.Collection)
}

// Publish рассылает событие всем подписчикам коллекции. Порядок доставки
// событий одной записи обеспечивается вызывающей стороной: сервисы держат
// publishMu от записи в хранилище до возврата из Publish.
func (s *FeedService) Publish(payload domain.PushPayload) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		if sub.Collection != "" && sub.Collection != payload.Collection {
			continue
		}
		sub.Notifier.Notify(payload)
	}
	s.logger.Info("Change event published", "collection", payload.Collection, "type", payload.Type)
}

// publishRecord кодирует запись и публикует событие изменения.
func (s *FeedService) publishRecord(opTag, collection string, record, old any) {
	raw, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("Error encoding change record", "error", err)
		return
	}
	payload := domain.PushPayload{Type: opTag, Collection: collection, Record: raw}
	if old != nil {
		if rawOld, err := json.Marshal(old); err == nil {
			payload.Old = rawOld
		}
	}
	s.Publish(payload)
}
