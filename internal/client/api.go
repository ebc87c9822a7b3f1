package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/code0ns/eventually/internal/domain"
	"log/slog"
)

// API — клиент REST-слоя сервера: учётные операции и одноразовые выборки.
// Сессионный токен хранится после входа и подставляется в каждый запрос.
type API struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger

	mu    sync.Mutex
	token string
}

// NewAPI создаёт нового REST-клиента.
func NewAPI(baseURL string, logger *slog.Logger) *API {
	return &API{
		baseURL: baseURL,
		httpc:   http.DefaultClient,
		logger:  logger,
	}
}

// Token возвращает текущий сессионный токен.
func (a *API) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// SetToken подставляет сессионный токен (например, сохранённый между
// запусками).
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

type authResponse struct {
	User  domain.Identity `json:"user"`
	Token string          `json:"token"`
}

// SignUp регистрирует пользователя и запоминает выданный токен.
func (a *API) SignUp(ctx context.Context, name, email, password string, role domain.Role) (domain.Identity, error) {
	body := map[string]string{"name": name, "email": email, "password": password, "role": string(role)}
	var resp authResponse
	if err := a.do(ctx, http.MethodPost, "/api/signup", body, &resp); err != nil {
		return domain.Identity{}, err
	}
	a.SetToken(resp.Token)
	return resp.User, nil
}

// SignIn проверяет учётные данные и запоминает выданный токен.
func (a *API) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	body := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := a.do(ctx, http.MethodPost, "/api/login", body, &resp); err != nil {
		return domain.Identity{}, err
	}
	a.SetToken(resp.Token)
	return resp.User, nil
}

// Me возвращает личность текущей сессии.
func (a *API) Me(ctx context.Context) (domain.Identity, error) {
	var u domain.Identity
	if err := a.do(ctx, http.MethodGet, "/api/me", nil, &u); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	return u, nil
}

// FetchRequests выполняет одноразовую выборку заявок. Пустые status и owner
// не фильтруют.
func (a *API) FetchRequests(ctx context.Context, status domain.Status, ownerID string) ([]domain.EventRequest, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if ownerID != "" {
		q.Set("owner", ownerID)
	}
	path := "/api/requests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var reqs []domain.EventRequest
	if err := a.do(ctx, http.MethodGet, path, nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// CreateRequest заводит заявку от имени текущей сессии.
func (a *API) CreateRequest(ctx context.Context, title, date string) (domain.EventRequest, error) {
	body := map[string]string{"title": title, "date": date}
	var req domain.EventRequest
	if err := a.do(ctx, http.MethodPost, "/api/requests", body, &req); err != nil {
		return domain.EventRequest{}, err
	}
	return req, nil
}

// TransitionRequest переводит заявку в новый статус. Локальное состояние при
// этом не трогается: изменение придёт событием push-канала.
func (a *API) TransitionRequest(ctx context.Context, id int64, status domain.Status) (domain.EventRequest, error) {
	body := map[string]string{"status": string(status)}
	var req domain.EventRequest
	if err := a.do(ctx, http.MethodPatch, "/api/requests/"+strconv.FormatInt(id, 10), body, &req); err != nil {
		return domain.EventRequest{}, err
	}
	return req, nil
}

// ListUsers возвращает всех пользователей (админский обзор).
func (a *API) ListUsers(ctx context.Context) ([]domain.Identity, error) {
	var users []domain.Identity
	if err := a.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserRole меняет роль пользователя (только admin).
func (a *API) UpdateUserRole(ctx context.Context, id string, role domain.Role) (domain.Identity, error) {
	body := map[string]string{"role": string(role)}
	var u domain.Identity
	if err := a.do(ctx, http.MethodPatch, "/api/users/"+id, body, &u); err != nil {
		return domain.Identity{}, err
	}
	return u, nil
}

// UnreadCount считает непрочитанные сообщения роли текущей сессии.
func (a *API) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/unread_count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkMessageRead помечает сообщение прочитанным.
func (a *API) MarkMessageRead(ctx context.Context, id int64) (domain.Message, error) {
	var m domain.Message
	path := "/api/messages/" + strconv.FormatInt(id, 10) + "/read"
	if err := a.do(ctx, http.MethodPatch, path, nil, &m); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// do выполняет запрос и декодирует ответ; тело ошибки сервера {"error": ...}
// превращается в текст ошибки.
func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
