package store

import (
	"testing"

	"github.com/code0ns/eventually/internal/domain"
)

func req(id int64, status domain.Status) domain.EventRequest {
	return domain.EventRequest{ID: id, Title: "Event", Date: "2025-06-01", Status: status, OwnerID: "owner"}
}

func TestNoDuplicateIDs(t *testing.T) {
	l := NewList()
	l.Seed([]domain.EventRequest{req(1, domain.StatusOpen), req(2, domain.StatusOpen)})
	l.ApplyUpsert(req(1, domain.StatusReviewing))
	l.ApplyUpsert(req(3, domain.StatusOpen))
	l.ApplyUpsert(req(2, domain.StatusAccepted))
	l.ApplyDelete(2)
	l.ApplyUpsert(req(2, domain.StatusOpen))

	seen := make(map[int64]bool)
	for _, r := range l.Snapshot() {
		if seen[r.ID] {
			t.Fatalf("дубликат id %d в коллекции", r.ID)
		}
		seen[r.ID] = true
	}
	if l.Len() != 3 {
		t.Errorf("ожидалось 3 записи, получено %d", l.Len())
	}
}

func TestUpsertIdempotent(t *testing.T) {
	l := NewList()
	l.ApplyUpsert(req(7, domain.StatusOpen))
	first := l.Snapshot()
	l.ApplyUpsert(req(7, domain.StatusOpen))
	second := l.Snapshot()
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("повторный upsert изменил состояние: %+v != %+v", first, second)
	}
}

func TestLastWriterWins(t *testing.T) {
	// insert id 7 Open, затем update id 7 Accepted: остаётся версия Accepted,
	// и в срезе агентства (только Open) записи нет.
	l := NewList()
	l.ApplyUpsert(req(7, domain.StatusOpen))
	l.ApplyUpsert(req(7, domain.StatusAccepted))

	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].ID != 7 || snap[0].Status != domain.StatusAccepted {
		t.Fatalf("ожидалась одна запись id 7 Accepted, получено %+v", snap)
	}
	agency := l.VisibleTo(domain.Identity{ID: "a1", Role: domain.RoleAgency})
	if len(agency) != 0 {
		t.Errorf("закрытая заявка видна агентству: %+v", agency)
	}
}

func TestUpsertMovesToFront(t *testing.T) {
	l := NewList()
	l.Seed([]domain.EventRequest{req(1, domain.StatusOpen), req(2, domain.StatusOpen), req(3, domain.StatusOpen)})
	l.ApplyUpsert(req(3, domain.StatusReviewing))
	snap := l.Snapshot()
	if snap[0].ID != 3 {
		t.Errorf("изменённая запись должна подняться в начало, порядок: %+v", snap)
	}
}

func TestSeedReplacesWholesale(t *testing.T) {
	l := NewList()
	l.Seed([]domain.EventRequest{req(10, domain.StatusOpen), req(11, domain.StatusAccepted), req(12, domain.StatusOpen)})
	l.Seed([]domain.EventRequest{req(1, domain.StatusOpen), req(2, domain.StatusOpen)})
	snap := l.Snapshot()
	if len(snap) != 2 || snap[0].ID != 1 || snap[1].ID != 2 {
		t.Errorf("посев должен заменить коллекцию целиком, получено %+v", snap)
	}
}

func TestDeleteUnknownIDIsNoop(t *testing.T) {
	l := NewList()
	l.Seed([]domain.EventRequest{req(1, domain.StatusOpen)})
	l.ApplyDelete(99)
	if l.Len() != 1 {
		t.Errorf("удаление незнакомого id изменило коллекцию")
	}
}

func TestVisibleTo(t *testing.T) {
	l := NewList()
	l.Seed([]domain.EventRequest{
		{ID: 1, Status: domain.StatusOpen, OwnerID: "c1"},
		{ID: 2, Status: domain.StatusAccepted, OwnerID: "c1"},
		{ID: 3, Status: domain.StatusOpen, OwnerID: "c2"},
	})
	if got := len(l.VisibleTo(domain.Identity{ID: "x", Role: domain.RoleAdmin})); got != 3 {
		t.Errorf("админ видит все заявки, получено %d", got)
	}
	if got := len(l.VisibleTo(domain.Identity{ID: "x", Role: domain.RoleAgency})); got != 2 {
		t.Errorf("агентство видит только Open, получено %d", got)
	}
	if got := len(l.VisibleTo(domain.Identity{ID: "c1", Role: domain.RoleClient})); got != 2 {
		t.Errorf("клиент видит только свои заявки, получено %d", got)
	}
}
