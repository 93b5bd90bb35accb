package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want 64", cfg.Server.MaxConns)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/xdg-data/calcdeck" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.History.Cap != 10 {
		t.Errorf("History.Cap = %d, want 10", cfg.History.Cap)
	}
	if cfg.History.Key != "calculator-history" {
		t.Errorf("History.Key = %q", cfg.History.Key)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestFileParsing verifies that all fields are read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "server.max_conns": "8",
  "storage.backend": "sqlite",
  "storage.data_dir": "/tmp/calcdeck-test",
  "history.cap": 25,
  "history.key": "calc-history-v2",
  "log.level": "debug"
}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 8 {
		t.Errorf("Server.MaxConns = %d, want 8", cfg.Server.MaxConns)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/calcdeck-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.History.Cap != 25 {
		t.Errorf("History.Cap = %d, want 25", cfg.History.Cap)
	}
	if cfg.History.Key != "calc-history-v2" {
		t.Errorf("History.Key = %q", cfg.History.Key)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "storage.backend": "sqlite"}`)
	t.Setenv("CALCDECK_SERVER_PORT", "6000")
	t.Setenv("CALCDECK_STORAGE_BACKEND", "bolt")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Errorf("Storage.Backend = %q, want bolt", cfg.Storage.Backend)
	}
}

// TestEnvOverride_BadIntegerKeepsValue verifies an unparsable env var is ignored.
func TestEnvOverride_BadIntegerKeepsValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("CALCDECK_HISTORY_CAP", "lots")

	cfg, err := loadWith(writeTempConfig(t, `{"history.cap": 12}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.History.Cap != 12 {
		t.Errorf("History.Cap = %d, want 12", cfg.History.Cap)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"port", `{"server.port": 70000}`, "server.port"},
		{"max conns", `{"server.max_conns": 0}`, "server.max_conns"},
		{"backend", `{"storage.backend": "redis"}`, "storage.backend"},
		{"cap", `{"history.cap": 0}`, "history.cap"},
		{"key", `{"history.key": "  "}`, "history.key"},
		{"level", `{"log.level": "verbose"}`, "log.level"},
		{"fractional int", `{"history.cap": 2.5}`, "history.cap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestMalformedFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{not json`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestSetKey_Persists(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	b := newFileBackend(path)

	if err := setKeyWith(b, "history.cap", "20"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "storage.backend", "bolt"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.History.Cap != 20 || cfg.Storage.Backend != "bolt" {
		t.Errorf("reloaded cap=%d backend=%q", cfg.History.Cap, cfg.Storage.Backend)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	clearEnv(t)
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	tests := []struct {
		key, value, want string
	}{
		{"nope", "1", "unknown config key"},
		{"server.api_token", "abc", "cannot set secret"},
		{"server.port", "abc", "invalid integer"},
		{"server.port", "0", "server.port"},
		{"storage.backend", "redis", "storage.backend"},
	}
	for _, tt := range tests {
		err := setKeyWith(b, tt.key, tt.value)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("setKeyWith(%s=%s) = %v, want error containing %q", tt.key, tt.value, err, tt.want)
		}
	}
	if _, err := os.Stat(b.path); !os.IsNotExist(err) {
		t.Error("rejected values should not create the config file")
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	for _, k := range ShowAll(defaults()) {
		if k.Key == "server.api_token" {
			t.Error("ShowAll exposed the API token key")
		}
	}
	if got, want := len(ValidKeys()), len(specs)-1; got != want {
		t.Errorf("ValidKeys() = %d keys, want %d", got, want)
	}
}

// brokenKeyring simulates a host without a secret service.
type brokenKeyring struct{}

func (brokenKeyring) Get(string, string) (string, error) { return "", errors.New("no secret service") }
func (brokenKeyring) Set(string, string, string) error   { return errors.New("no secret service") }

func TestAPIToken_EnvWins(t *testing.T) {
	keyring.MockInit()
	t.Setenv(envAPIToken, "from-env")
	if err := keyring.Set(keyringService, keyringAccount, "from-keyring"); err != nil {
		t.Fatal(err)
	}

	tok, err := apiTokenWith(systemKeyring{}, t.TempDir(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "from-env" {
		t.Errorf("token = %q, want from-env", tok)
	}
}

func TestAPIToken_GeneratedOnceAndStoredInKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv(envAPIToken, "")
	dir := t.TempDir()

	if _, err := apiTokenWith(systemKeyring{}, dir, false); err == nil {
		t.Fatal("expected error when no token exists and create=false")
	}

	first, err := apiTokenWith(systemKeyring{}, dir, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(first))
	}
	second, err := apiTokenWith(systemKeyring{}, dir, false)
	if err != nil || second != first {
		t.Errorf("second lookup = %q, %v; want %q", second, err, first)
	}
	if _, err := os.Stat(filepath.Join(dir, tokenFileName)); !os.IsNotExist(err) {
		t.Error("token file should not be written when the keyring works")
	}
}

func TestAPIToken_FileFallback(t *testing.T) {
	t.Setenv(envAPIToken, "")
	dir := filepath.Join(t.TempDir(), "data")

	tok, err := apiTokenWith(brokenKeyring{}, dir, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, tokenFileName))
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}

	again, err := apiTokenWith(brokenKeyring{}, dir, false)
	if err != nil || again != tok {
		t.Errorf("reload = %q, %v; want %q", again, err, tok)
	}
}
