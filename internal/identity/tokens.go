// Пакет identity — пользователи, выпуск JWT (RS256) и TokenAuthority:
// кэшируемая проверка токенов и извлечение userId для всех сервисов.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// Claims — claims выпускаемых токенов. sub — userId.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// LoadOrGenerateKey читает RSA-ключ из PEM-файла. Пустой путь — ключ
// генерируется (токены перестают быть валидными после рестарта).
func LoadOrGenerateKey(path string, logger *slog.Logger) (*rsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("ID_JWT_PRIVATE_KEY_PATH не задан, ключ подписи сгенерирован при старте")
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("генерация RSA-ключа: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение ключа %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("разбор ключа %s: %w", path, err)
	}
	return key, nil
}

// TokenIssuer выпускает токены и публикует открытый ключ в JWKS.
type TokenIssuer struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	jwks   jwkset.Storage
	now    func() time.Time
}

// NewTokenIssuer создаёт TokenIssuer и записывает открытый ключ в JWKS-хранилище.
func NewTokenIssuer(ctx context.Context, key *rsa.PrivateKey, kid, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: kid,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWK: %w", err)
	}

	storage := jwkset.NewMemoryStorage()
	if err := storage.KeyWrite(ctx, jwk); err != nil {
		return nil, fmt.Errorf("запись JWK: %w", err)
	}

	return &TokenIssuer{
		key:    key,
		kid:    kid,
		issuer: issuer,
		ttl:    ttl,
		jwks:   storage,
		now:    time.Now,
	}, nil
}

// Issue выпускает токен для пользователя.
func (i *TokenIssuer) Issue(u *model.User) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Username: u.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.kid

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Storage возвращает JWKS-хранилище с открытым ключом.
func (i *TokenIssuer) Storage() jwkset.Storage {
	return i.jwks
}

// JWKS возвращает открытую часть JWKS для /.well-known/jwks.json.
func (i *TokenIssuer) JWKS(ctx context.Context) (json.RawMessage, error) {
	return i.jwks.JSONPublic(ctx)
}

// Verifier проверяет подпись RS256, срок действия и издателя токена.
type Verifier struct {
	kf     keyfunc.Keyfunc
	issuer string
	leeway time.Duration
}

// NewVerifier создаёт Verifier поверх JWKS-хранилища.
func NewVerifier(storage jwkset.Storage, issuer string, leeway time.Duration) (*Verifier, error) {
	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewVerifierWithKeyfunc(kf, issuer, leeway), nil
}

// NewVerifierWithKeyfunc создаёт Verifier с готовой keyfunc.
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{kf: kf, issuer: issuer, leeway: leeway}
}

// ErrInvalidToken — токен не прошёл проверку.
var ErrInvalidToken = errors.New("недействительный токен")

// Verify разбирает и проверяет токен.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.kf.KeyfuncCtx(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
