package unread

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/code0ns/eventually/internal/domain"
	"log/slog"
)

// CountFunc выполняет авторитетный подсчёт непрочитанных сообщений роли.
type CountFunc func(ctx context.Context, role domain.Role) (int, error)

// Counter — производный счётчик непрочитанных сообщений роли. Между полными
// пересчётами значение корректируется инкрементально по событиям ленты;
// дрейф допустим и устраняется следующим Recount.
type Counter struct {
	mu     sync.Mutex
	n      int
	role   domain.Role
	count  CountFunc
	logger *slog.Logger
}

// NewCounter создаёт счётчик для роли.
func NewCounter(role domain.Role, count CountFunc, logger *slog.Logger) *Counter {
	return &Counter{role: role, count: count, logger: logger}
}

// Value возвращает текущее значение; оно никогда не меньше нуля.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Recount выполняет полный пересчёт и заменяет держимое значение.
func (c *Counter) Recount(ctx context.Context) (int, error) {
	n, err := c.count(ctx, c.role)
	if err != nil {
		return c.Value(), err
	}
	c.mu.Lock()
	c.n = n
	c.mu.Unlock()
	return n, nil
}

// OnMessageEvent корректирует счётчик по событию коллекции messages:
// +1 за новое непрочитанное сообщение для роли, -1 за переход
// unread -> read, иначе 0.
func (c *Counter) OnMessageEvent(ev domain.ChangeEvent) {
	if ev.Collection != domain.CollectionMessages {
		return
	}
	var m domain.Message
	if err := json.Unmarshal(ev.Entity, &m); err != nil {
		c.logger.Error("Error decoding message entity", "error", err)
		return
	}
	if m.RecipientRole != c.role {
		return
	}

	delta := 0
	switch ev.Op {
	case domain.OpInsert:
		if !m.IsRead {
			delta = 1
		}
	case domain.OpUpdate:
		var prev domain.Message
		if ev.Prev == nil || json.Unmarshal(ev.Prev, &prev) != nil {
			return
		}
		if !prev.IsRead && m.IsRead {
			delta = -1
		} else if prev.IsRead && !m.IsRead {
			delta = 1
		}
	}
	if delta == 0 {
		return
	}

	c.mu.Lock()
	c.n += delta
	if c.n < 0 {
		c.n = 0
	}
	c.mu.Unlock()
}
