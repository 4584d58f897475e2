package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Namespace — пространство ключей кэша со своей версией схемы значения.
// Имя пространства — часть стабильного контракта ключей ("<name>:<id>"),
// версия хранится в конверте значения и при расхождении значение
// считается промахом.
type Namespace struct {
	// Name — префикс ключа
	Name string
	// Version — версия схемы сериализованного значения
	Version int
	// TTL — время жизни записи по умолчанию
	TTL time.Duration
}

// Key возвращает полный ключ для идентификатора.
func (n Namespace) Key(id string) string {
	return n.Name + ":" + id
}

// Пространства ключей. Имена — стабильный контракт между сервисами.
var (
	UserByID        = Namespace{Name: "user_by_id", Version: 1, TTL: 30 * time.Minute}
	UserByEmail     = Namespace{Name: "user_by_email", Version: 1, TTL: 30 * time.Minute}
	TokenUser       = Namespace{Name: "token_user", Version: 1, TTL: 5 * time.Minute}
	TokenValidation = Namespace{Name: "token_validation", Version: 1, TTL: 5 * time.Minute}
	TokenRevoked    = Namespace{Name: "token_revoked", Version: 1, TTL: time.Hour}
	FileByID        = Namespace{Name: "file_by_id", Version: 1, TTL: 30 * time.Minute}
	UserByFileID    = Namespace{Name: "user_by_file_id", Version: 1, TTL: 5 * time.Minute}
	FilesByUserID   = Namespace{Name: "files_by_user_id", Version: 1, TTL: 30 * time.Minute}
	FileExists      = Namespace{Name: "file_exists", Version: 1, TTL: 5 * time.Minute}
)

// InvalidTokenTTL — время жизни отрицательного результата проверки токена.
const InvalidTokenTTL = time.Minute

// MaxTTL — наибольший TTL среди пространств (граница для in-process LRU).
const MaxTTL = time.Hour

// namespaceOf возвращает имя пространства из ключа (для меток метрик).
func namespaceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}

// credentialNamespaces — пространства, где id ключа является bearer-токеном.
var credentialNamespaces = map[string]bool{
	TokenUser.Name:       true,
	TokenValidation.Name: true,
	TokenRevoked.Name:    true,
}

// logKey возвращает ключ для записи в лог. Токен заменяется
// коротким sha256-отпечатком, по которому ключи можно сопоставить.
func logKey(key string) string {
	ns := namespaceOf(key)
	if !credentialNamespaces[ns] {
		return key
	}
	sum := sha256.Sum256([]byte(key[len(ns)+1:]))
	return ns + ":sha256:" + hex.EncodeToString(sum[:6])
}

func logKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = logKey(k)
	}
	return out
}
