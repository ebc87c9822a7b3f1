package store

import (
	"sync"

	"github.com/code0ns/eventually/internal/domain"
)

// List — локальная согласуемая коллекция заявок: упорядоченная,
// дедуплицированная по id, самые свежие изменения в начале. Все мутации
// сериализуются одним циклом применения событий, мьютекс защищает чтения
// из других горутин.
type List struct {
	mu    sync.Mutex
	order []int64
	byID  map[int64]domain.EventRequest
}

// NewList создаёт пустую коллекцию.
func NewList() *List {
	return &List{byID: make(map[int64]domain.EventRequest)}
}

// Seed целиком заменяет коллекцию. Используется при первичной загрузке и
// при ремонте после разрыва push-канала.
func (l *List) Seed(items []domain.EventRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = l.order[:0]
	l.byID = make(map[int64]domain.EventRequest, len(items))
	for _, r := range items {
		if _, exists := l.byID[r.ID]; exists {
			continue
		}
		l.order = append(l.order, r.ID)
		l.byID[r.ID] = r
	}
}

// ApplyUpsert вставляет или заменяет запись по id и поднимает её в начало
// порядка. При двух подряд версиях одной записи остаётся пришедшая последней.
func (l *List) ApplyUpsert(r domain.EventRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[r.ID]; exists {
		l.remove(r.ID)
	}
	l.order = append([]int64{r.ID}, l.order...)
	l.byID[r.ID] = r
}

// ApplyDelete удаляет запись по id. Незнакомый id не ошибка: запись могла
// быть отфильтрована предикатом видимости роли и никогда не попасть сюда.
func (l *List) ApplyDelete(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[id]; !exists {
		return
	}
	l.remove(id)
	delete(l.byID, id)
}

// remove выкидывает id из порядка; вызывается под мьютексом.
func (l *List) remove(id int64) {
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// Len возвращает размер коллекции.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Snapshot возвращает копию коллекции в порядке отображения.
func (l *List) Snapshot() []domain.EventRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventRequest, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// VisibleTo возвращает срез коллекции, видимый данной личности: клиент —
// только свои заявки, агентство — только Open, администратор — всё.
func (l *List) VisibleTo(id domain.Identity) []domain.EventRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventRequest, 0, len(l.order))
	for _, rid := range l.order {
		r := l.byID[rid]
		switch id.Role {
		case domain.RoleAdmin:
			out = append(out, r)
		case domain.RoleAgency:
			if r.Status == domain.StatusOpen {
				out = append(out, r)
			}
		case domain.RoleClient:
			if r.OwnerID == id.ID {
				out = append(out, r)
			}
		}
	}
	return out
}
