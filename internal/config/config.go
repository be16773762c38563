package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL    string
	AuthToken     string
	FacebookToken string
	FacebookID    string
	APITimeout    time.Duration
	APIRatePerMin int

	// Store
	StoreBasePath string

	// Photo
	PhotoTimeout time.Duration
	PhotoMaxSize int64

	// Status server
	StatusPort string

	// Logging
	LogLevel string
}

// HasAuthToken は認証トークンが直接指定されているかを返す。
func (c *Config) HasAuthToken() bool {
	return c.AuthToken != ""
}

// LoadDotEnv は指定された.envファイルを環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// TINDER_AUTH_TOKEN か FACEBOOK_TOKEN と FACEBOOK_ID の組のどちらかが必要。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.AuthToken = os.Getenv("TINDER_AUTH_TOKEN")
	cfg.FacebookToken = os.Getenv("FACEBOOK_TOKEN")
	cfg.FacebookID = os.Getenv("FACEBOOK_ID")

	if cfg.AuthToken == "" {
		var missing []string
		if cfg.FacebookToken == "" {
			missing = append(missing, "FACEBOOK_TOKEN")
		}
		if cfg.FacebookID == "" {
			missing = append(missing, "FACEBOOK_ID")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("required environment variables are not set: %v (or set TINDER_AUTH_TOKEN)", missing)
		}
	}

	defaultBase, err := defaultStoreBasePath()
	if err != nil {
		return nil, err
	}

	// Optional fields with defaults
	cfg.APIBaseURL = getEnvString("TINDER_API_URL", "https://api.gotinder.com")
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 30*time.Second)
	cfg.APIRatePerMin = getEnvInt("API_RATE_PER_MIN", 60)
	cfg.StoreBasePath = getEnvString("STORE_BASE_PATH", defaultBase)
	cfg.PhotoTimeout = getEnvDuration("PHOTO_TIMEOUT", 30*time.Second)
	cfg.PhotoMaxSize = getEnvInt64("PHOTO_MAX_SIZE", 20971520)
	cfg.StatusPort = getEnvString("STATUS_PORT", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// defaultStoreBasePath は STORE_BASE_PATH が未設定の場合の $HOME/tinderStore を返す。
func defaultStoreBasePath() (string, error) {
	if os.Getenv("STORE_BASE_PATH") != "" {
		return "", nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory (set STORE_BASE_PATH): %w", err)
	}
	return filepath.Join(home, "tinderStore"), nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
