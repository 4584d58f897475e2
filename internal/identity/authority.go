package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/cloud-drive/internal/cache"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
)

// TokenVerifier — криптографическая проверка токена.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// TokenAuthority отвечает на вопросы «действителен ли токен» и «чей он».
// Результаты кэшируются: действительный — на 5 минут (не дольше срока
// токена), недействительный — на 1 минуту. Отзыв проверяется при каждом
// вызове, в том числе при попадании в кэш.
type TokenAuthority struct {
	verifier   TokenVerifier
	store      *cache.Store
	validation *cache.Typed[bool]
	users      *cache.Typed[string]
	revoked    *cache.Typed[bool]
	group      singleflight.Group
	logger     *slog.Logger
	now        func() time.Time
}

// NewTokenAuthority создаёт TokenAuthority.
func NewTokenAuthority(verifier TokenVerifier, store *cache.Store, logger *slog.Logger) *TokenAuthority {
	return &TokenAuthority{
		verifier:   verifier,
		store:      store,
		validation: cache.NewTyped[bool](store, cache.TokenValidation),
		users:      cache.NewTyped[string](store, cache.TokenUser),
		revoked:    cache.NewTyped[bool](store, cache.TokenRevoked),
		logger:     logger.With(slog.String("component", "token_authority")),
		now:        time.Now,
	}
}

// Validate сообщает, действителен ли токен. Никогда не возвращает ошибку:
// любой сбой проверки — false.
func (a *TokenAuthority) Validate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	if a.isRevoked(ctx, token) {
		return false
	}

	if valid, ok := a.validation.Get(ctx, token); ok {
		return valid
	}

	res, _, _ := a.group.Do("validate:"+token, func() (any, error) {
		claims, err := a.verifier.Verify(ctx, token)
		if err != nil {
			a.logger.Debug("Токен не прошёл проверку", slog.String("error", err.Error()))
			a.validation.SetTTL(ctx, token, false, cache.InvalidTokenTTL)
			return false, nil
		}
		a.validation.SetTTL(ctx, token, true, a.positiveTTL(claims, cache.TokenValidation.TTL))
		return true, nil
	})
	return res.(bool)
}

// GetUserID возвращает userId владельца токена. Сначала вызывается
// Validate, поэтому недействительный токен никогда не даёт userId.
func (a *TokenAuthority) GetUserID(ctx context.Context, token string) (uuid.UUID, bool) {
	if !a.Validate(ctx, token) {
		return uuid.Nil, false
	}

	if cached, ok := a.users.Get(ctx, token); ok {
		if id, err := uuid.Parse(cached); err == nil {
			return id, true
		}
		a.users.Remove(ctx, token)
	}

	res, _, _ := a.group.Do("user:"+token, func() (any, error) {
		claims, err := a.verifier.Verify(ctx, token)
		if err != nil {
			return uuid.Nil, nil
		}
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			a.logger.Warn("sub токена не является UUID", slog.String("sub", claims.Subject))
			return uuid.Nil, nil
		}
		a.users.SetTTL(ctx, token, id.String(), a.positiveTTL(claims, cache.TokenUser.TTL))
		return id, nil
	})

	id := res.(uuid.UUID)
	return id, id != uuid.Nil
}

// Revoke отзывает токен до конца его срока действия.
func (a *TokenAuthority) Revoke(ctx context.Context, token string) error {
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return apperr.Unauthorized("токен недействителен")
	}

	ttl := cache.TokenRevoked.TTL
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(a.now())
	}
	if ttl > 0 {
		a.revoked.SetTTL(ctx, token, true, ttl)
	}
	a.store.Remove(ctx, a.validation.Key(token), a.users.Key(token))

	a.logger.Info("Токен отозван", slog.String("user_id", claims.Subject))
	return nil
}

func (a *TokenAuthority) isRevoked(ctx context.Context, token string) bool {
	revoked, ok := a.revoked.Get(ctx, token)
	return ok && revoked
}

// positiveTTL ограничивает TTL положительного результата сроком токена.
func (a *TokenAuthority) positiveTTL(claims *Claims, ttl time.Duration) time.Duration {
	if claims.ExpiresAt == nil {
		return ttl
	}
	if remaining := claims.ExpiresAt.Sub(a.now()); remaining < ttl {
		if remaining <= 0 {
			return time.Second
		}
		return remaining
	}
	return ttl
}
