package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/repository"
	"github.com/code0ns/eventually/internal/service"
	"log/slog"
)

// WebSocketNotifier оборачивает websocket-соединение для реализации
// интерфейса Notifier.
type WebSocketNotifier struct {
	Conn   *websocket.Conn
	Logger *slog.Logger
}

// Notify отправляет событие через WebSocket.
func (w *WebSocketNotifier) Notify(payload domain.PushPayload) {
	w.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := w.Conn.WriteJSON(payload); err != nil {
		w.Logger.Error("Error writing JSON", "error", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Разрешаем подключения с любых источников (для демонстрации)
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler реализует HTTP-обработчики REST API и push-канала.
type Handler struct {
	Auth     *service.AuthService
	Requests *service.RequestService
	Messages *service.MessageService
	Feed     *service.FeedService
	Logger   *slog.Logger
}

// NewHandler создаёт новый обработчик.
func NewHandler(auth *service.AuthService, requests *service.RequestService, messages *service.MessageService, feed *service.FeedService, logger *slog.Logger) *Handler {
	return &Handler{
		Auth:     auth,
		Requests: requests,
		Messages: messages,
		Feed:     feed,
		Logger:   logger,
	}
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type authResponse struct {
	User  domain.Identity `json:"user"`
	Token string          `json:"token"`
}

// HandleSignUp регистрирует пользователя и выдаёт сессионный токен.
func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	u, token, err := h.Auth.SignUp(c.Name, c.Email, c.Password, c.Role)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, authResponse{User: u, Token: token})
}

// HandleSignIn проверяет учётные данные и выдаёт сессионный токен.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	u, token, err := h.Auth.SignIn(c.Email, c.Password)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, authResponse{User: u, Token: token})
}

// HandleMe возвращает личность текущей сессии.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// HandleListRequests выбирает заявки по фильтру из query-параметров.
func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	var f repository.RequestFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := domain.ParseStatus(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Status = status
	}
	f.OwnerID = r.URL.Query().Get("owner")

	reqs, err := h.Requests.List(f)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if reqs == nil {
		reqs = []domain.EventRequest{}
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

// HandleCreateRequest заводит заявку от имени текущей сессии (роль client).
func (h *Handler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	u, ok := identityFrom(r.Context())
	if !ok || u.Role != domain.RoleClient {
		h.writeError(w, http.StatusForbidden, domain.ErrUnauthenticated)
		return
	}
	var body struct {
		Title string `json:"title"`
		Date  string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := h.Requests.Create(body.Title, body.Date, u.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}

// HandleTransitionRequest переводит заявку в новый статус (agency/admin).
func (h *Handler) HandleTransitionRequest(w http.ResponseWriter, r *http.Request) {
	u, ok := identityFrom(r.Context())
	if !ok || (u.Role != domain.RoleAgency && u.Role != domain.RoleAdmin) {
		h.writeError(w, http.StatusForbidden, domain.ErrUnauthenticated)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := domain.ParseStatus(body.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := h.Requests.Transition(id, status)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// HandleListUsers возвращает всех пользователей (только admin).
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	users, err := h.Requests.Users()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if users == nil {
		users = []domain.Identity{}
	}
	h.writeJSON(w, http.StatusOK, users)
}

// HandleUpdateUserRole меняет роль пользователя (только admin).
func (h *Handler) HandleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.Requests.UpdateUserRole(chi.URLParam(r, "id"), domain.Role(body.Role))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// HandleUnreadCount считает непрочитанные сообщения роли текущей сессии.
func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	u, ok := identityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}
	n, err := h.Messages.UnreadCount(u.Role)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// HandleSendMessage создаёт сообщение для роли.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientRole string `json:"recipient_role"`
		Body          string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := h.Messages.Send(domain.Role(body.RecipientRole), body.Body)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, m)
}

// HandleMarkMessageRead помечает сообщение прочитанным.
func (h *Handler) HandleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := h.Messages.MarkRead(id)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// HandleWebSocket выполняет апгрейд соединения и регистрирует подписчика
// push-канала. Коллекция берётся из query-параметра collection; пустое
// значение подписывает на все коллекции.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("WebSocket upgrade error", "error", err)
		return
	}
	notifier := &WebSocketNotifier{Conn: conn, Logger: h.Logger}
	sub := &service.Subscriber{
		Collection: r.URL.Query().Get("collection"),
		Notifier:   notifier,
	}
	h.Feed.Register(sub)

	// Создаём контекст для управления жизненным циклом соединения.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(conn, ctx)
	h.readPump(conn)
	h.Feed.Unregister(sub)
}

// readPump читает входящие сообщения и завершает соединение при ошибке.
func (h *Handler) readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Error("readPump error", "error", err)
			}
			break
		}
	}
}

// writePump отправляет ping-сообщения для поддержания соединения.
func (h *Handler) writePump(conn *websocket.Conn, ctx context.Context) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Logger.Error("Ping error", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// SetupRouter настраивает маршруты через chi и возвращает http.Handler.
func SetupRouter(h *Handler, wsPath string) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/signup", h.HandleSignUp)
	r.Post("/api/login", h.HandleSignIn)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Get("/api/me", h.HandleMe)
		r.Get("/api/requests", h.HandleListRequests)
		r.Post("/api/requests", h.HandleCreateRequest)
		r.Patch("/api/requests/{id}", h.HandleTransitionRequest)
		r.Get("/api/users", h.HandleListUsers)
		r.Patch("/api/users/{id}", h.HandleUpdateUserRole)
		r.Get("/api/messages/unread_count", h.HandleUnreadCount)
		r.Post("/api/messages", h.HandleSendMessage)
		r.Patch("/api/messages/{id}/read", h.HandleMarkMessageRead)
	})

	r.Get(wsPath, h.HandleWebSocket)
	return r
}

type contextKey struct{ name string }

var identityKey = &contextKey{"identity"}

// authMiddleware разбирает сессионный токен из заголовка Authorization
// (Bearer) либо query-параметра token и кладёт личность в контекст запроса.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if auth := r.Header.Get("Authorization"); auth != "" {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		u, err := h.Auth.ParseToken(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) (domain.Identity, bool) {
	u, ok := ctx.Value(identityKey).(domain.Identity)
	return u, ok
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role domain.Role) bool {
	u, ok := identityFrom(r.Context())
	if !ok || u.Role != role {
		h.writeError(w, http.StatusForbidden, domain.ErrUnauthenticated)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("Error encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.Logger.Error("Request failed", "status", status, "error", err)
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor отображает доменные ошибки на коды HTTP.
func statusFor(err error) int {
	var transition *domain.InvalidTransitionError
	switch {
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnknownRole):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
