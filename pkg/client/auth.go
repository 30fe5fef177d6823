package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenFile holds a saved authentication token.
type TokenFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Server    string    `json:"server"`
	Username  string    `json:"username,omitempty"`
}

// IsExpired returns true if the token expires within margin. A token
// without an expiry never expires.
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// TokenFromJWT builds a TokenFile from a bearer token issued by the store.
// The signature is not verified; only the server can do that. The subject
// (or the "username" claim) and expiry are copied when present.
func TokenFromJWT(raw, server string) (*TokenFile, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	tf := &TokenFile{Token: raw, Server: server}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tf.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		tf.Username = sub
	} else if name, ok := claims["username"].(string); ok {
		tf.Username = name
	}
	return tf, nil
}

// TokenFilePath returns the default path for the token file.
func TokenFilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "FileBrowser", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "filebrowser", "token.json")
}

// SaveToken writes tf to path, or to TokenFilePath when path is empty.
func SaveToken(path string, tf *TokenFile) error {
	if path == "" {
		path = TokenFilePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken reads a token file from path, or from TokenFilePath when path
// is empty.
func LoadToken(path string) (*TokenFile, error) {
	if path == "" {
		path = TokenFilePath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return &tf, nil
}

// DeleteToken removes the saved token file.
func DeleteToken(path string) error {
	if path == "" {
		path = TokenFilePath()
	}
	return os.Remove(path)
}
