package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const tokenFileName = "token.json"

// tokenFile is the on-disk shape of the cached credential.
type tokenFile struct {
	Token  string `json:"token"`
	UserID string `json:"userId,omitempty"`
}

// configPath determines the configuration directory for the CLI.
func configPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if isValidDir(xdg) {
			return filepath.Join(xdg, "health-management"), nil
		}
	}

	if runtime.GOOS == "windows" {
		if path := os.Getenv("LOCALAPPDATA"); isValidDir(path) {
			return filepath.Join(path, "health-management"), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "health-management"), nil
}

// isValidDir checks if a given path is a valid directory.
func isValidDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Token retrieves the backend token from the environment or the cached
// token file, in that order.
func Token() (string, error) {
	if token := os.Getenv("HEALTH_TOKEN"); token != "" {
		return token, nil
	}

	dir, err := configPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	if err != nil {
		return "", errors.New("not logged in; run the login command or set HEALTH_TOKEN")
	}

	var cached tokenFile
	if err := json.Unmarshal(data, &cached); err != nil || cached.Token == "" {
		return "", errors.New("cached token is unreadable; log in again")
	}
	return cached.Token, nil
}

// loginResponse mirrors the backend's uniform response wrapper; on success
// Data holds the issued JWT.
type loginResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

// Login authenticates against the backend and caches the issued token.
func Login(ctx context.Context, base, email, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login payload: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close response body: %v\n", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("login failed with status %d: %s", resp.StatusCode, body)
	}

	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if result.Code != 1 || result.Data == "" {
		return "", fmt.Errorf("login rejected: %s", result.Msg)
	}

	if err := save(result.Data); err != nil {
		return "", err
	}
	return result.Data, nil
}

func save(token string) error {
	dir, err := configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.Marshal(tokenFile{Token: token})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tokenFileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
