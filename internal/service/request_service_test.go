package service

import (
	"database/sql"
	"encoding/json"
	"io"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/repository"
	"log/slog"
)

func newTestRequestService(t *testing.T) (*FeedService, *RequestService) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	repo := repository.NewSQLiteRepository(db)
	if err := repo.Init(); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewFeedService(logger)
	return feed, NewRequestService(repo, feed, logger)
}

// gateNotifier задерживает каждую доставку до сигнала из gate.
type gateNotifier struct {
	got  chan domain.PushPayload
	gate chan struct{}
}

func (n *gateNotifier) Notify(p domain.PushPayload) {
	n.got <- p
	<-n.gate
}

// Пока публикация одного события не завершена, конкурирующая мутация той же
// записи не должна ни зафиксироваться, ни опубликоваться: иначе подписчик
// может получить устаревшую версию последней.
func TestMutationAndPublishAreSerialized(t *testing.T) {
	feed, svc := newTestRequestService(t)

	created, err := svc.Create("Выставка", "2026-10-01", "u1")
	if err != nil {
		t.Fatal(err)
	}

	n := &gateNotifier{got: make(chan domain.PushPayload), gate: make(chan struct{})}
	feed.Register(&Subscriber{Collection: domain.CollectionRequests, Notifier: n})

	errs := make(chan error, 2)
	go func() {
		_, err := svc.Transition(created.ID, domain.StatusReviewing)
		errs <- err
	}()

	first := <-n.got

	go func() {
		_, err := svc.Transition(created.ID, domain.StatusAccepted)
		errs <- err
	}()

	// Вторая мутация обязана ждать завершения первой публикации.
	select {
	case p := <-n.got:
		t.Fatalf("событие опубликовано до завершения предыдущей публикации: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}

	n.gate <- struct{}{}
	second := <-n.got
	n.gate <- struct{}{}

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}

	var r1, r2 domain.EventRequest
	if err := json.Unmarshal(first.Record, &r1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(second.Record, &r2); err != nil {
		t.Fatal(err)
	}
	if r1.Status != domain.StatusReviewing || r2.Status != domain.StatusAccepted {
		t.Errorf("нарушен порядок фиксации: получено %s, затем %s", r1.Status, r2.Status)
	}
}
