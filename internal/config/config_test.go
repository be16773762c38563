package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("TINDER_AUTH_TOKEN", "")
	t.Setenv("FACEBOOK_TOKEN", "test-fb-token")
	t.Setenv("FACEBOOK_ID", "1234567890")
	t.Setenv("STORE_BASE_PATH", "/tmp/tinderStore")
}

func TestLoad_FacebookCredentials_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.FacebookToken != "test-fb-token" {
		t.Errorf("FacebookToken = %q, want %q", cfg.FacebookToken, "test-fb-token")
	}
	if cfg.FacebookID != "1234567890" {
		t.Errorf("FacebookID = %q, want %q", cfg.FacebookID, "1234567890")
	}
	if cfg.HasAuthToken() {
		t.Error("HasAuthToken = true, want false")
	}
}

func TestLoad_AuthTokenOnly_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FACEBOOK_TOKEN", "")
	t.Setenv("FACEBOOK_ID", "")
	t.Setenv("TINDER_AUTH_TOKEN", "tok")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.HasAuthToken() || cfg.AuthToken != "tok" {
		t.Errorf("AuthToken = %q", cfg.AuthToken)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "https://api.gotinder.com" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "https://api.gotinder.com")
	}
	if cfg.APITimeout != 30*time.Second {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, 30*time.Second)
	}
	if cfg.APIRatePerMin != 60 {
		t.Errorf("APIRatePerMin = %d, want %d", cfg.APIRatePerMin, 60)
	}
	if cfg.PhotoTimeout != 30*time.Second {
		t.Errorf("PhotoTimeout = %v, want %v", cfg.PhotoTimeout, 30*time.Second)
	}
	if cfg.PhotoMaxSize != 20971520 {
		t.Errorf("PhotoMaxSize = %d, want %d", cfg.PhotoMaxSize, 20971520)
	}
	if cfg.StatusPort != "" {
		t.Errorf("StatusPort = %q, want empty", cfg.StatusPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad_DefaultStoreBasePath(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("STORE_BASE_PATH", "")
	t.Setenv("HOME", "/home/tester")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.StoreBasePath != filepath.Join("/home/tester", "tinderStore") {
		t.Errorf("StoreBasePath = %q", cfg.StoreBasePath)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TINDER_API_URL", "http://localhost:9999")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("API_RATE_PER_MIN", "10")
	t.Setenv("PHOTO_TIMEOUT", "1m")
	t.Setenv("PHOTO_MAX_SIZE", "1024")
	t.Setenv("STATUS_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:9999" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.APITimeout != 5*time.Second {
		t.Errorf("APITimeout = %v", cfg.APITimeout)
	}
	if cfg.APIRatePerMin != 10 {
		t.Errorf("APIRatePerMin = %d", cfg.APIRatePerMin)
	}
	if cfg.PhotoTimeout != time.Minute {
		t.Errorf("PhotoTimeout = %v", cfg.PhotoTimeout)
	}
	if cfg.PhotoMaxSize != 1024 {
		t.Errorf("PhotoMaxSize = %d", cfg.PhotoMaxSize)
	}
	if cfg.StoreBasePath != "/tmp/tinderStore" {
		t.Errorf("StoreBasePath = %q", cfg.StoreBasePath)
	}
	if cfg.StatusPort != "9100" {
		t.Errorf("StatusPort = %q", cfg.StatusPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("API_TIMEOUT", "soon")
	t.Setenv("API_RATE_PER_MIN", "many")
	t.Setenv("PHOTO_MAX_SIZE", "big")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.APITimeout != 30*time.Second || cfg.APIRatePerMin != 60 || cfg.PhotoMaxSize != 20971520 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingFacebookToken_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FACEBOOK_TOKEN", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing FACEBOOK_TOKEN, got nil")
	}
	if !strings.Contains(err.Error(), "FACEBOOK_TOKEN") {
		t.Errorf("error should name FACEBOOK_TOKEN: %v", err)
	}
}

func TestLoad_MissingFacebookID_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FACEBOOK_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing FACEBOOK_ID, got nil")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MATCHKEEPER_TEST_A=from-file\nMATCHKEEPER_TEST_B=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MATCHKEEPER_TEST_A", "")
	os.Unsetenv("MATCHKEEPER_TEST_A")
	t.Setenv("MATCHKEEPER_TEST_B", "from-env")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := os.Getenv("MATCHKEEPER_TEST_A"); got != "from-file" {
		t.Errorf("MATCHKEEPER_TEST_A = %q, want %q", got, "from-file")
	}
	if got := os.Getenv("MATCHKEEPER_TEST_B"); got != "from-env" {
		t.Errorf("既存の環境変数は上書きしない: %q", got)
	}
}
