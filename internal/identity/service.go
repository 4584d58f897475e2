package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/goartstore/cloud-drive/internal/cache"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/repository"
)

// minPasswordLen — минимальная длина пароля.
const minPasswordLen = 6

// Issuer выпускает токен для пользователя.
type Issuer interface {
	Issue(u *model.User) (token string, expiresAt time.Time, err error)
}

// AuthResult — результат регистрации или входа.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// AuthService — регистрация, вход и чтение пользователей.
type AuthService struct {
	users   repository.UserRepository
	issuer  Issuer
	store   *cache.Store
	byID    *cache.Typed[model.User]
	byEmail *cache.Typed[model.User]
	cost    int
	logger  *slog.Logger
}

// NewAuthService создаёт AuthService. bcryptCost — стоимость хеширования паролей.
func NewAuthService(
	users repository.UserRepository,
	issuer Issuer,
	store *cache.Store,
	bcryptCost int,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		issuer:  issuer,
		store:   store,
		byID:    cache.NewTyped[model.User](store, cache.UserByID),
		byEmail: cache.NewTyped[model.User](store, cache.UserByEmail),
		cost:    bcryptCost,
		logger:  logger.With(slog.String("component", "auth_service")),
	}
}

// Register создаёт пользователя и выпускает токен.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if username == "" {
		return nil, apperr.Validation("username обязателен")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("некорректный email")
	}
	if len(password) < minPasswordLen {
		return nil, apperr.Validation("пароль должен содержать не менее %d символов", minPasswordLen)
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(err, "ошибка проверки email")
	}
	if exists {
		return nil, apperr.Conflict("email уже зарегистрирован")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Internal(err, "ошибка хеширования пароля")
	}

	u := &model.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict("email уже зарегистрирован")
		}
		return nil, apperr.Internal(err, "ошибка создания пользователя")
	}

	s.store.Remove(ctx, s.byID.Key(u.ID.String()), s.byEmail.Key(email))

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", u.ID.String()),
		slog.String("username", u.Username),
	)

	return s.issue(u)
}

// Login проверяет пароль и выпускает токен.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	u, ok := s.byEmail.Get(ctx, email)
	if ok {
		s.logger.Debug("Пользователь найден в кэше", slog.String("email", email))
	} else {
		found, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.Unauthorized("неверные учётные данные")
			}
			return nil, apperr.Internal(err, "ошибка получения пользователя")
		}
		u = *found
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("неверные учётные данные")
	}

	if !ok {
		s.byEmail.Set(ctx, email, u)
	}
	return s.issue(&u)
}

// GetUser возвращает пользователя по id.
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := s.byID.Get(ctx, id.String()); ok {
		return &u, nil
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("пользователь %s не найден", id)
		}
		return nil, apperr.Internal(err, "ошибка получения пользователя")
	}

	s.byID.Set(ctx, id.String(), *u)
	return u, nil
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	token, expiresAt, err := s.issuer.Issue(u)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("выпуск токена: %w", err), "ошибка выпуска токена")
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
