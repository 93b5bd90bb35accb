package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	envAPIToken    = "CALCDECK_API_TOKEN"
	keyringService = appName
	keyringAccount = "api_token"
	tokenFileName  = "api_token"
)

// secretStore abstracts the system keyring for testing.
type secretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

type systemKeyring struct{}

func (systemKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (systemKeyring) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

// APIToken returns the bearer token shared by the server and the CLI.
// CALCDECK_API_TOKEN wins. Otherwise the token comes from the system keyring,
// then from a 0600 file in the data dir when no keyring is available. When
// create is true and nothing is stored yet, a new token is generated and
// saved.
func APIToken(cfg Config, create bool) (string, error) {
	return apiTokenWith(systemKeyring{}, cfg.Storage.DataDir, create)
}

func apiTokenWith(ks secretStore, dataDir string, create bool) (string, error) {
	if tok := strings.TrimSpace(os.Getenv(envAPIToken)); tok != "" {
		return tok, nil
	}

	if tok, err := ks.Get(keyringService, keyringAccount); err == nil && tok != "" {
		return tok, nil
	}

	tokenPath := filepath.Join(dataDir, tokenFileName)
	if data, err := os.ReadFile(tokenPath); err == nil {
		if tok := strings.TrimSpace(string(data)); tok != "" {
			return tok, nil
		}
	}

	if !create {
		return "", fmt.Errorf("no API token found; set %s or run `calcdeck start` once", envAPIToken)
	}

	tok, err := generateToken()
	if err != nil {
		return "", err
	}
	serr := ks.Set(keyringService, keyringAccount, tok)
	if serr == nil {
		return tok, nil
	}
	if dataDir == "" {
		return "", fmt.Errorf("storing API token: %w", serr)
	}

	// No usable keyring.
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.WriteFile(tokenPath, []byte(tok+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing API token: %w", err)
	}
	return tok, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
