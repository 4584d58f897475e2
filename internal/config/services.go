package config

import (
	"fmt"
	"strings"
	"time"
)

// IdentityConfig — конфигурация Identity Service (префикс ID_).
type IdentityConfig struct {
	Server    ServerConfig
	DB        DBConfig
	Cache     CacheConfig
	Dephealth DephealthConfig

	// JWTPrivateKeyPath — PEM с RSA-ключом подписи. Пусто — ключ генерируется при старте.
	JWTPrivateKeyPath string
	// JWTKeyID — kid, публикуемый в JWKS
	JWTKeyID string
	// JWTIssuer — iss выпускаемых токенов
	JWTIssuer string
	// JWTTTL — время жизни токена
	JWTTTL time.Duration
	// JWTLeeway — допуск расхождения часов при проверке exp/nbf
	JWTLeeway time.Duration
	// BcryptCost — стоимость bcrypt
	BcryptCost int
}

// MetadataConfig — конфигурация Metadata Service (префикс MD_).
type MetadataConfig struct {
	Server    ServerConfig
	DB        DBConfig
	Cache     CacheConfig
	Broker    BrokerConfig
	Dephealth DephealthConfig
}

// StorageConfig — конфигурация Storage Service (префикс FS_).
type StorageConfig struct {
	Server ServerConfig
	Broker BrokerConfig

	// DataDir — директория хранения файлов
	DataDir string
	// MaxFileSize — максимальный размер загружаемого файла (байт)
	MaxFileSize int64
	// AllowedExtensions — допустимые расширения (с точкой, в нижнем регистре)
	AllowedExtensions []string
}

// GatewayConfig — конфигурация API Gateway (префикс GW_).
type GatewayConfig struct {
	Server    ServerConfig
	Dephealth DephealthConfig

	// URL сервисов
	IdentityURL string
	MetadataURL string
	StorageURL  string
	// ClientTimeout — таймаут HTTP-запросов к сервисам
	ClientTimeout time.Duration
	// CACertPath — CA-сертификат для HTTPS к сервисам (опционально)
	CACertPath string
}

// LoadIdentity загружает конфигурацию Identity Service.
func LoadIdentity() (*IdentityConfig, error) {
	const prefix = "ID_"
	cfg := &IdentityConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8040); err != nil {
		return nil, err
	}
	if cfg.DB, err = loadDB(prefix); err != nil {
		return nil, err
	}
	if cfg.Cache, err = loadCache(prefix); err != nil {
		return nil, err
	}
	if cfg.Dephealth, err = loadDephealth(prefix); err != nil {
		return nil, err
	}

	cfg.JWTPrivateKeyPath = getEnvDefault("ID_JWT_PRIVATE_KEY_PATH", "")
	cfg.JWTKeyID = getEnvDefault("ID_JWT_KEY_ID", "identity-1")
	cfg.JWTIssuer = getEnvDefault("ID_JWT_ISSUER", "cloud-drive-identity")

	if cfg.JWTTTL, err = getEnvDuration("ID_JWT_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("ID_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("ID_JWT_TTL: значение должно быть > 0")
	}
	if cfg.JWTLeeway, err = getEnvDuration("ID_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("ID_JWT_LEEWAY: %w", err)
	}
	if cfg.BcryptCost, err = getEnvInt("ID_BCRYPT_COST", 10); err != nil {
		return nil, fmt.Errorf("ID_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("ID_BCRYPT_COST: значение %d вне диапазона 4-31", cfg.BcryptCost)
	}

	return cfg, nil
}

// LoadMetadata загружает конфигурацию Metadata Service.
func LoadMetadata() (*MetadataConfig, error) {
	const prefix = "MD_"
	cfg := &MetadataConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8050); err != nil {
		return nil, err
	}
	if cfg.DB, err = loadDB(prefix); err != nil {
		return nil, err
	}
	if cfg.Cache, err = loadCache(prefix); err != nil {
		return nil, err
	}
	if cfg.Broker, err = loadBroker(prefix); err != nil {
		return nil, err
	}
	if cfg.Dephealth, err = loadDephealth(prefix); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadStorage загружает конфигурацию Storage Service.
func LoadStorage() (*StorageConfig, error) {
	const prefix = "FS_"
	cfg := &StorageConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8060); err != nil {
		return nil, err
	}
	if cfg.Broker, err = loadBroker(prefix); err != nil {
		return nil, err
	}

	cfg.DataDir = getEnvDefault("FS_DATA_DIR", "/data")

	// FS_MAX_FILE_SIZE — по умолчанию 100 МБ
	if cfg.MaxFileSize, err = getEnvInt64("FS_MAX_FILE_SIZE", 100*1024*1024); err != nil {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: значение должно быть > 0")
	}

	exts := parseCSV(getEnvDefault("FS_ALLOWED_EXTENSIONS", ".pdf,.jpg,.jpeg,.png,.txt,.zip"))
	for i, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[i] = ext
	}
	cfg.AllowedExtensions = exts

	return cfg, nil
}

// LoadGateway загружает конфигурацию API Gateway.
func LoadGateway() (*GatewayConfig, error) {
	const prefix = "GW_"
	cfg := &GatewayConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8070); err != nil {
		return nil, err
	}
	if cfg.Dephealth, err = loadDephealth(prefix); err != nil {
		return nil, err
	}

	if cfg.IdentityURL, err = getEnvRequired("GW_IDENTITY_URL"); err != nil {
		return nil, err
	}
	if cfg.MetadataURL, err = getEnvRequired("GW_METADATA_URL"); err != nil {
		return nil, err
	}
	if cfg.StorageURL, err = getEnvRequired("GW_STORAGE_URL"); err != nil {
		return nil, err
	}
	cfg.IdentityURL = strings.TrimRight(cfg.IdentityURL, "/")
	cfg.MetadataURL = strings.TrimRight(cfg.MetadataURL, "/")
	cfg.StorageURL = strings.TrimRight(cfg.StorageURL, "/")

	if cfg.ClientTimeout, err = getEnvDuration("GW_CLIENT_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("GW_CLIENT_TIMEOUT: %w", err)
	}
	cfg.CACertPath = getEnvDefault("GW_CA_CERT_PATH", "")

	return cfg, nil
}
