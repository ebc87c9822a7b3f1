package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/code0ns/eventually/internal/authz"
	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/feed"
	"github.com/code0ns/eventually/internal/session"
	"github.com/code0ns/eventually/internal/store"
	"github.com/code0ns/eventually/internal/unread"
	"log/slog"
)

// RedirectError сообщает вызывающему, что вместо монтирования страницы
// требуется переход на другой маршрут. Саму навигацию выполняет вызывающий.
type RedirectError struct {
	Route string
}

func (e *RedirectError) Error() string {
	return "redirect to " + e.Route
}

// Dashboard — корень клиентского процесса: владеет сессией, REST-клиентом и
// клиентом push-канала и передаёт их монтируемым страницам явно, а не через
// глобальные синглтоны.
type Dashboard struct {
	Session *session.Store
	api     *API
	feed    *feed.Client
	logger  *slog.Logger
}

// NewDashboard создаёт корневой объект дашборда.
func NewDashboard(api *API, feedClient *feed.Client, sess *session.Store, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		Session: sess,
		api:     api,
		feed:    feedClient,
		logger:  logger,
	}
}

// API возвращает REST-клиента для действий страниц (создание заявки,
// accept/reject, правка ролей).
func (d *Dashboard) API() *API {
	return d.api
}

// SignIn выполняет вход и сохраняет личность в сессии.
func (d *Dashboard) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	u, err := d.api.SignIn(ctx, email, password)
	if err != nil {
		return domain.Identity{}, err
	}
	d.Session.Set(u)
	return u, nil
}

// SignUp регистрирует пользователя и сохраняет личность в сессии.
func (d *Dashboard) SignUp(ctx context.Context, name, email, password string, role domain.Role) (domain.Identity, error) {
	u, err := d.api.SignUp(ctx, name, email, password, role)
	if err != nil {
		return domain.Identity{}, err
	}
	d.Session.Set(u)
	return u, nil
}

// SignOut завершает сессию.
func (d *Dashboard) SignOut() {
	d.api.SetToken("")
	d.Session.Clear()
}

// View — смонтированная страница дашборда: живая коллекция заявок, счётчик
// непрочитанных и канал требований навигации.
type View struct {
	Role     domain.Role
	Requests *store.List
	Unread   *unread.Counter

	// Redirects доставляет маршрут, на который страницу нужно увести
	// (например, после внешней смены роли).
	Redirects <-chan string

	redirects chan string
	subs      []*feed.Subscription
	unsub     func()
	cancel    context.CancelFunc
	done      chan struct{}
	dashboard *Dashboard
	identity  domain.Identity
	live      atomic.Bool
}

// LiveUpdates сообщает, жив ли push-канал. false означает, что
// переподключение раз за разом срывается и коллекция может отставать;
// страница показывает это состояние пользователю. После восстановления
// канала и перечитывания флаг возвращается в true.
func (v *View) LiveUpdates() bool {
	return v.live.Load()
}

// Mount монтирует страницу с требуемой ролью: разрешает сессию, проверяет
// доступ, загружает коллекцию одноразовой выборкой и подписывается на
// push-канал. При отказе в доступе возвращается RedirectError; ошибка
// авторизации (нераспознанная роль) логируется и закрывается редиректом
// на логин.
func (d *Dashboard) Mount(ctx context.Context, required domain.Role) (*View, error) {
	id, ok := d.Session.Current()
	dec, err := authz.Authorize(id, ok, required)
	if err != nil {
		d.logger.Error("Fatal authorization error", "error", err)
		return nil, &RedirectError{Route: authz.LoginRoute}
	}
	if !dec.Allow {
		return nil, &RedirectError{Route: dec.RedirectTo}
	}

	list := store.NewList()
	counter := unread.NewCounter(required, func(ctx context.Context, _ domain.Role) (int, error) {
		return d.api.UnreadCount(ctx)
	}, d.logger)

	items, err := d.fetchVisible(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", domain.CollectionRequests, err)
	}
	list.Seed(items)
	if _, err := counter.Recount(ctx); err != nil {
		// Счётчик — производный кэш; стартуем с нуля и ждём пересчёта.
		d.logger.Error("Initial unread recount failed", "error", err)
	}

	viewCtx, cancel := context.WithCancel(ctx)
	v := &View{
		Role:      required,
		Requests:  list,
		Unread:    counter,
		redirects: make(chan string, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
		dashboard: d,
		identity:  id,
	}
	v.Redirects = v.redirects

	v.live.Store(true)

	events := make(chan domain.ChangeEvent, 64)
	reseeds := make(chan struct{}, 1)
	downs := make(chan struct{}, 1)
	for _, collection := range []string{domain.CollectionRequests, domain.CollectionMessages, domain.CollectionUsers} {
		sub, err := d.feed.Subscribe(viewCtx, collection, events, reseeds, downs)
		if err != nil {
			for _, s := range v.subs {
				s.Cancel()
			}
			cancel()
			return nil, fmt.Errorf("subscribe %s: %w", collection, err)
		}
		v.subs = append(v.subs, sub)
	}

	v.unsub = d.Session.OnChange(func(cur domain.Identity, ok bool) {
		v.reauthorize(cur, ok)
	})

	go v.run(viewCtx, events, reseeds, downs)
	return v, nil
}

// Unmount снимает страницу: отменяет подписки и останавливает цикл
// применения событий. Забытая подписка продолжала бы доставлять события в
// никем не наблюдаемое хранилище.
func (v *View) Unmount() {
	v.unsub()
	for _, sub := range v.subs {
		sub.Cancel()
	}
	v.cancel()
	<-v.done
}

// run — единственный путь записи в коллекцию: все события ленты, ремонты
// после разрывов и полные перечитывания применяются в одной горутине.
func (v *View) run(ctx context.Context, events <-chan domain.ChangeEvent, reseeds <-chan struct{}, downs <-chan struct{}) {
	defer close(v.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-downs:
			v.dashboard.logger.Warn("Live updates unavailable")
			v.live.Store(false)
		case <-reseeds:
			v.live.Store(true)
			v.reseed(ctx)
		case ev := <-events:
			switch ev.Collection {
			case domain.CollectionRequests:
				v.applyRequestEvent(ctx, ev)
			case domain.CollectionMessages:
				if ev.Op == domain.OpUnknown {
					v.recount(ctx)
					continue
				}
				v.Unread.OnMessageEvent(ev)
			case domain.CollectionUsers:
				v.applyUserEvent(ev)
			}
		}
	}
}

// applyRequestEvent применяет событие коллекции заявок. Нераспознанная
// операция — не потеря события, а принудительное полное перечитывание:
// иначе локальная коллекция разойдётся с хранилищем.
func (v *View) applyRequestEvent(ctx context.Context, ev domain.ChangeEvent) {
	d := v.dashboard
	switch ev.Op {
	case domain.OpInsert, domain.OpUpdate:
		var r domain.EventRequest
		if err := json.Unmarshal(ev.Entity, &r); err != nil {
			d.logger.Error("Error decoding event request", "error", err)
			return
		}
		v.Requests.ApplyUpsert(r)
	case domain.OpDelete:
		var r domain.EventRequest
		if err := json.Unmarshal(ev.Entity, &r); err != nil {
			d.logger.Error("Error decoding event request", "error", err)
			return
		}
		v.Requests.ApplyDelete(r.ID)
	case domain.OpUnknown:
		d.logger.Warn("Unknown change operation, refetching collection")
		v.reseed(ctx)
	}
}

// applyUserEvent следит за правками пользователей: смена роли текущей
// личности обновляет сессию, что переоценит авторизацию открытой страницы.
func (v *View) applyUserEvent(ev domain.ChangeEvent) {
	d := v.dashboard
	if ev.Op == domain.OpUnknown {
		// Кто и как изменился — неизвестно; перечитываем собственную личность.
		cur, err := d.api.Me(context.Background())
		if err != nil {
			d.logger.Error("Error refetching identity", "error", err)
			d.Session.Clear()
			return
		}
		d.Session.Set(cur)
		return
	}
	var u domain.Identity
	if err := json.Unmarshal(ev.Entity, &u); err != nil {
		d.logger.Error("Error decoding user entity", "error", err)
		return
	}
	if u.ID != v.identity.ID {
		return
	}
	d.Session.Set(u)
}

// reauthorize перепроверяет доступ страницы после смены сессии.
func (v *View) reauthorize(cur domain.Identity, ok bool) {
	select {
	case <-v.done:
		return
	default:
	}
	d := v.dashboard
	dec, err := authz.Authorize(cur, ok, v.Role)
	if err != nil {
		d.logger.Error("Fatal authorization error on session change", "error", err)
		v.requestRedirect(authz.LoginRoute)
		return
	}
	if !dec.Allow {
		v.requestRedirect(dec.RedirectTo)
	}
}

func (v *View) requestRedirect(route string) {
	select {
	case v.redirects <- route:
	default:
	}
	v.cancel()
}

// reseed целиком перечитывает коллекцию и пересчитывает счётчик: после
// разрыва канала неизвестно, что было пропущено.
func (v *View) reseed(ctx context.Context) {
	d := v.dashboard
	items, err := d.fetchVisible(ctx, v.identity)
	if err != nil {
		d.logger.Error("Reseed fetch failed", "error", err)
		return
	}
	v.Requests.Seed(items)
	v.recount(ctx)
}

func (v *View) recount(ctx context.Context) {
	if _, err := v.Unread.Recount(ctx); err != nil {
		v.dashboard.logger.Error("Unread recount failed", "error", err)
	}
}

// fetchVisible выполняет одноразовую выборку заявок, видимых личности:
// клиент — свои, агентство — только Open, администратор — все.
func (d *Dashboard) fetchVisible(ctx context.Context, id domain.Identity) ([]domain.EventRequest, error) {
	switch id.Role {
	case domain.RoleAgency:
		return d.api.FetchRequests(ctx, domain.StatusOpen, "")
	case domain.RoleClient:
		return d.api.FetchRequests(ctx, "", id.ID)
	default:
		return d.api.FetchRequests(ctx, "", "")
	}
}
