package feed

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/code0ns/eventually/internal/domain"
	"log/slog"
)

// Client подписывается на push-канал сервера и отдаёт потребителю
// нормализованные события изменений.
type Client struct {
	wsURL   string
	logger  *slog.Logger
	backoff time.Duration // начальная задержка переподключения
}

// NewClient создаёт нового клиента push-канала.
func NewClient(wsURL string, logger *slog.Logger) *Client {
	return &Client{wsURL: wsURL, logger: logger, backoff: time.Second}
}

// Subscription — активная подписка на коллекцию.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel останавливает доставку и освобождает канал. Блокируется до
// завершения цикла чтения; повторный вызов безопасен.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Subscribe подключается к push-каналу и доставляет события коллекции в
// канал events. После каждого успешного переподключения в reseed уходит
// сигнал: что было пропущено в разрыве неизвестно, потребитель обязан
// перечитать коллекцию целиком до применения новых событий. Если
// переподключение раз за разом срывается, в down уходит сигнал — потребитель
// показывает, что живых обновлений нет; следующий сигнал reseed означает,
// что канал снова жив.
func (c *Client) Subscribe(ctx context.Context, collection string, events chan<- domain.ChangeEvent, reseed chan<- struct{}, down chan<- struct{}) (*Subscription, error) {
	conn, err := c.connect(collection)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go c.listenLoop(subCtx, conn, collection, events, reseed, down, sub.done)
	return sub, nil
}

// connect устанавливает WebSocket-соединение с сервером.
func (c *Client) connect(collection string) (*websocket.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	if collection != "" {
		q := u.Query()
		q.Set("collection", collection)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Connected to push channel", "url", u.String())
	return conn, nil
}

// listenLoop читает сообщения с автоматическим переподключением.
func (c *Client) listenLoop(ctx context.Context, conn *websocket.Conn, collection string, events chan<- domain.ChangeEvent, reseed chan<- struct{}, down chan<- struct{}, done chan struct{}) {
	defer close(done)
	for {
		if err := c.readAll(ctx, conn, collection, events); err != nil && ctx.Err() == nil {
			c.logger.Error("Read error", "error", err)
		}
		conn.Close()
		if ctx.Err() != nil {
			c.logger.Info("Subscription cancelled", "collection", collection)
			return
		}
		conn = c.reconnect(ctx, collection, reseed, down)
		if conn == nil {
			return
		}
	}
}

// readAll читает сообщения одного соединения до ошибки чтения или отмены.
// Отмена подписки закрывает соединение, чтобы разблокировать чтение.
func (c *Client) readAll(ctx context.Context, conn *websocket.Conn, collection string, events chan<- domain.ChangeEvent) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		event, err := Normalize(message)
		if err != nil {
			// Нечитаемое сообщение нельзя молча отбросить: потребитель
			// получает OpUnknown и перечитывает коллекцию подписки.
			c.logger.Error("Error decoding push payload", "error", err)
			event = domain.ChangeEvent{Op: domain.OpUnknown, Collection: collection}
		}
		if event.Op == domain.OpUnknown {
			c.logger.Warn("Unknown operation tag in push payload", "collection", event.Collection)
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconnect восстанавливает соединение с экспоненциальной задержкой и
// сигналит о необходимости полного перечитывания коллекции. Возвращает nil,
// если подписка отменена.
func (c *Client) reconnect(ctx context.Context, collection string, reseed chan<- struct{}, down chan<- struct{}) *websocket.Conn {
	backoff := c.backoff
	attempts := 0
	for {
		conn, err := c.connect(collection)
		if err == nil {
			c.logger.Info("Reconnected successfully", "collection", collection)
			select {
			case reseed <- struct{}{}:
			case <-ctx.Done():
				conn.Close()
				return nil
			}
			return conn
		}
		attempts++
		c.logger.Error("Reconnection attempt failed", "error", err, "attempts", attempts)
		if attempts == 5 {
			// Попытки продолжаются, но живых обновлений у страницы нет и
			// наблюдателю нужно об этом сказать.
			c.logger.Warn("Live updates unavailable", "collection", collection)
			select {
			case down <- struct{}{}:
			default:
			}
		}
		select {
		case <-ctx.Done():
			c.logger.Info("Reconnection cancelled")
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Normalize приводит сырое сообщение push-канала к ChangeEvent. Тег операции
// хранилища сравнивается без учёта регистра; нераспознанный тег становится
// OpUnknown и доставляется потребителю, а не отбрасывается.
func Normalize(raw []byte) (domain.ChangeEvent, error) {
	var p domain.PushPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.ChangeEvent{}, err
	}
	op := domain.OpUnknown
	switch strings.ToLower(p.Type) {
	case "insert":
		op = domain.OpInsert
	case "update":
		op = domain.OpUpdate
	case "delete":
		op = domain.OpDelete
	}
	return domain.ChangeEvent{
		Op:         op,
		Collection: p.Collection,
		Entity:     p.Record,
		Prev:       p.Old,
	}, nil
}
