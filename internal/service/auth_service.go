package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/repository"
	"log/slog"
)

// Срок жизни сессионного токена.
const tokenTTL = 24 * time.Hour

// sessionClaims — полезная нагрузка сессионного токена.
type sessionClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService реализует учётные операции: регистрацию, вход и разбор
// сессионных токенов.
type AuthService struct {
	repo   repository.Store
	feed   *FeedService
	secret []byte
	logger *slog.Logger
}

// NewAuthService создаёт новый экземпляр сервиса.
func NewAuthService(repo repository.Store, feed *FeedService, secret []byte, logger *slog.Logger) *AuthService {
	return &AuthService{repo: repo, feed: feed, secret: secret, logger: logger}
}

// SignUp регистрирует пользователя и возвращает его личность с токеном.
func (s *AuthService) SignUp(name, email, password, role string) (domain.Identity, string, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return domain.Identity{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("hash password: %w", err)
	}
	u := domain.Identity{ID: uuid.NewString(), Name: name, Email: email, Role: r}
	s.feed.publishMu.Lock()
	defer s.feed.publishMu.Unlock()
	if err := s.repo.CreateUser(u, string(hash)); err != nil {
		return domain.Identity{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := s.mintToken(u)
	if err != nil {
		return domain.Identity{}, "", err
	}
	s.feed.publishRecord("INSERT", domain.CollectionUsers, u, nil)
	s.logger.Info("User signed up", "id", u.ID, "role", u.Role)
	return u, token, nil
}

// SignIn проверяет учётные данные и возвращает личность с токеном.
// Отсутствие записи пользователя после успешной проверки пароля невозможно
// по построению, но отсутствие самой записи по email отдаётся как
// ErrInvalidCredentials, чтобы не раскрывать существование аккаунта.
func (s *AuthService) SignIn(email, password string) (domain.Identity, string, error) {
	u, hash, err := s.repo.UserByEmail(email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.Identity{}, "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.Identity{}, "", domain.ErrInvalidCredentials
	}
	if !u.Role.Valid() {
		// Личность без распознанной роли равнозначна отсутствию сессии.
		return domain.Identity{}, "", domain.ErrUnknownRole
	}
	token, err := s.mintToken(u)
	if err != nil {
		return domain.Identity{}, "", err
	}
	s.logger.Info("User signed in", "id", u.ID, "role", u.Role)
	return u, token, nil
}

// ParseToken разбирает сессионный токен и возвращает личность.
func (s *AuthService) ParseToken(token string) (domain.Identity, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  role,
	}, nil
}

func (s *AuthService) mintToken(u domain.Identity) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
