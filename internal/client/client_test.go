package client

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/feed"
	"github.com/code0ns/eventually/internal/repository"
	"github.com/code0ns/eventually/internal/service"
	"github.com/code0ns/eventually/internal/session"
	transportServer "github.com/code0ns/eventually/internal/transport/server"
	"log/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	logger := testLogger()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	repo := repository.NewSQLiteRepository(db)
	if err := repo.Init(); err != nil {
		t.Fatal(err)
	}
	feedSvc := service.NewFeedService(logger)
	auth := service.NewAuthService(repo, feedSvc, []byte("test-secret"), logger)
	requests := service.NewRequestService(repo, feedSvc, logger)
	messages := service.NewMessageService(repo, feedSvc, logger)
	handler := transportServer.NewHandler(auth, requests, messages, feedSvc, logger)
	srv := httptest.NewServer(transportServer.SetupRouter(handler, "/ws"))
	t.Cleanup(srv.Close)
	return srv
}

func newDashboard(t *testing.T, backend *httptest.Server) *Dashboard {
	t.Helper()
	logger := testLogger()
	api := NewAPI(backend.URL, logger)
	feedClient := feed.NewClient("ws"+strings.TrimPrefix(backend.URL, "http")+"/ws", logger)
	return NewDashboard(api, feedClient, session.NewStore(logger), logger)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("таймаут ожидания: %s", what)
}

func TestMountWithoutSessionRedirectsToLogin(t *testing.T) {
	d := NewDashboard(NewAPI("", testLogger()), feed.NewClient("", testLogger()), session.NewStore(testLogger()), testLogger())
	_, err := d.Mount(context.Background(), domain.RoleClient)
	var redirect *RedirectError
	if !errors.As(err, &redirect) || redirect.Route != "/login" {
		t.Fatalf("ожидался редирект на /login, получено %v", err)
	}
}

func TestMountRoleMismatchRedirectsHome(t *testing.T) {
	sess := session.NewStore(testLogger())
	sess.Set(domain.Identity{ID: "u1", Role: domain.RoleAgency})
	d := NewDashboard(NewAPI("", testLogger()), feed.NewClient("", testLogger()), sess, testLogger())

	_, err := d.Mount(context.Background(), domain.RoleAdmin)
	var redirect *RedirectError
	if !errors.As(err, &redirect) || redirect.Route != "/agency-dashboard" {
		t.Fatalf("ожидался редирект на /agency-dashboard, получено %v", err)
	}
}

func TestAgencyViewLiveReconciliation(t *testing.T) {
	backend := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Клиент создаёт заявки, агентство наблюдает их вживую.
	clientAPI := NewAPI(backend.URL, testLogger())
	if _, err := clientAPI.SignUp(ctx, "Alice", "alice@example.com", "secret", domain.RoleClient); err != nil {
		t.Fatal(err)
	}

	d := newDashboard(t, backend)
	if _, err := d.SignUp(ctx, "Bob", "bob@example.com", "secret", domain.RoleAgency); err != nil {
		t.Fatal(err)
	}
	v, err := d.Mount(ctx, domain.RoleAgency)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	created, err := clientAPI.CreateRequest(ctx, "Wedding", "2025-06-01")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "появление заявки в коллекции", func() bool {
		return v.Requests.Len() == 1
	})

	// Принятие уходит в хранилище; локально статус меняет только лента.
	if _, err := d.API().TransitionRequest(ctx, created.ID, domain.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	agency := domain.Identity{ID: "x", Role: domain.RoleAgency}
	waitFor(t, "исчезновение закрытой заявки из среза агентства", func() bool {
		snap := v.Requests.Snapshot()
		return len(snap) == 1 && snap[0].Status == domain.StatusAccepted &&
			len(v.Requests.VisibleTo(agency)) == 0
	})
}

func TestExternalRoleChangeRedirectsOpenView(t *testing.T) {
	backend := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adminAPI := NewAPI(backend.URL, testLogger())
	if _, err := adminAPI.SignUp(ctx, "Root", "root@example.com", "secret", domain.RoleAdmin); err != nil {
		t.Fatal(err)
	}

	d := newDashboard(t, backend)
	bob, err := d.SignUp(ctx, "Bob", "bob@example.com", "secret", domain.RoleAgency)
	if err != nil {
		t.Fatal(err)
	}
	v, err := d.Mount(ctx, domain.RoleAgency)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	// Администратор понижает Боба до клиента: открытая вкладка агентства
	// обязана уйти на /home, а не остаться авторизованной.
	if _, err := adminAPI.UpdateUserRole(ctx, bob.ID, domain.RoleClient); err != nil {
		t.Fatal(err)
	}

	select {
	case route := <-v.Redirects:
		if route != "/home" {
			t.Errorf("ожидался /home, получено %s", route)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("таймаут ожидания редиректа")
	}
}

func TestUnmountDetachesViewFromSession(t *testing.T) {
	backend := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newDashboard(t, backend)
	if _, err := d.SignUp(ctx, "Bob", "bob@example.com", "secret", domain.RoleAgency); err != nil {
		t.Fatal(err)
	}
	v, err := d.Mount(ctx, domain.RoleAgency)
	if err != nil {
		t.Fatal(err)
	}
	v.Unmount()

	// Размонтированная страница отписана от сессии: смена личности больше
	// не доходит до неё и не порождает редиректов.
	d.Session.Set(domain.Identity{ID: "u9", Role: domain.RoleClient})
	select {
	case route := <-v.Redirects:
		t.Fatalf("размонтированная страница получила редирект: %s", route)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnreadCounterFollowsFeed(t *testing.T) {
	backend := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adminAPI := NewAPI(backend.URL, testLogger())
	if _, err := adminAPI.SignUp(ctx, "Root", "root@example.com", "secret", domain.RoleAdmin); err != nil {
		t.Fatal(err)
	}

	d := newDashboard(t, backend)
	if _, err := d.SignUp(ctx, "Bob", "bob@example.com", "secret", domain.RoleAgency); err != nil {
		t.Fatal(err)
	}
	v, err := d.Mount(ctx, domain.RoleAgency)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	if err := adminAPI.do(ctx, "POST", "/api/messages", map[string]string{
		"recipient_role": "agency", "body": "hello",
	}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "инкремент счётчика непрочитанных", func() bool {
		return v.Unread.Value() == 1
	})

	if _, err := d.API().MarkMessageRead(ctx, 1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "декремент счётчика после прочтения", func() bool {
		return v.Unread.Value() == 0
	})
}
