package unread

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/code0ns/eventually/internal/domain"
	"log/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func messageEvent(t *testing.T, op domain.Op, m domain.Message, prev *domain.Message) domain.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	ev := domain.ChangeEvent{Op: op, Collection: domain.CollectionMessages, Entity: raw}
	if prev != nil {
		rawPrev, err := json.Marshal(prev)
		if err != nil {
			t.Fatal(err)
		}
		ev.Prev = rawPrev
	}
	return ev
}

func TestReadTransitionDecrements(t *testing.T) {
	// Счётчик на 3, приходит переход unread -> read: становится 2.
	// Последующий полный пересчёт с тем же значением ничего не меняет.
	recounts := 0
	c := NewCounter(domain.RoleAgency, func(ctx context.Context, role domain.Role) (int, error) {
		recounts++
		if recounts == 1 {
			return 3, nil
		}
		return 2, nil
	}, testLogger())

	if _, err := c.Recount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Value() != 3 {
		t.Fatalf("после пересчёта ожидалось 3, получено %d", c.Value())
	}

	unreadMsg := domain.Message{ID: 5, RecipientRole: domain.RoleAgency, IsRead: false}
	readMsg := unreadMsg
	readMsg.IsRead = true
	c.OnMessageEvent(messageEvent(t, domain.OpUpdate, readMsg, &unreadMsg))
	if c.Value() != 2 {
		t.Fatalf("после прочтения ожидалось 2, получено %d", c.Value())
	}

	if _, err := c.Recount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Value() != 2 {
		t.Errorf("пересчёт не должен был изменить значение, получено %d", c.Value())
	}
}

func TestNewUnreadIncrements(t *testing.T) {
	c := NewCounter(domain.RoleAgency, func(ctx context.Context, role domain.Role) (int, error) {
		return 0, nil
	}, testLogger())

	c.OnMessageEvent(messageEvent(t, domain.OpInsert, domain.Message{ID: 1, RecipientRole: domain.RoleAgency}, nil))
	if c.Value() != 1 {
		t.Errorf("ожидалось 1, получено %d", c.Value())
	}
	// Уже прочитанное сообщение счётчик не меняет.
	c.OnMessageEvent(messageEvent(t, domain.OpInsert, domain.Message{ID: 2, RecipientRole: domain.RoleAgency, IsRead: true}, nil))
	if c.Value() != 1 {
		t.Errorf("прочитанное сообщение изменило счётчик: %d", c.Value())
	}
}

func TestOtherRoleIgnored(t *testing.T) {
	c := NewCounter(domain.RoleAgency, nil, testLogger())
	c.OnMessageEvent(messageEvent(t, domain.OpInsert, domain.Message{ID: 1, RecipientRole: domain.RoleAdmin}, nil))
	if c.Value() != 0 {
		t.Errorf("сообщение чужой роли изменило счётчик: %d", c.Value())
	}
}

func TestCounterNeverNegative(t *testing.T) {
	c := NewCounter(domain.RoleAgency, nil, testLogger())
	unreadMsg := domain.Message{ID: 1, RecipientRole: domain.RoleAgency, IsRead: false}
	readMsg := unreadMsg
	readMsg.IsRead = true
	c.OnMessageEvent(messageEvent(t, domain.OpUpdate, readMsg, &unreadMsg))
	if c.Value() != 0 {
		t.Errorf("счётчик ушёл ниже нуля: %d", c.Value())
	}
}

func TestReadToReadIsZeroDelta(t *testing.T) {
	c := NewCounter(domain.RoleAgency, nil, testLogger())
	readMsg := domain.Message{ID: 1, RecipientRole: domain.RoleAgency, IsRead: true}
	c.OnMessageEvent(messageEvent(t, domain.OpUpdate, readMsg, &readMsg))
	if c.Value() != 0 {
		t.Errorf("повторное прочтение изменило счётчик: %d", c.Value())
	}
}
