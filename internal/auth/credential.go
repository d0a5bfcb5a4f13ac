// Package auth handles interview credentials: issuing and verifying them on
// the server, and storing and watching them on the client.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoCredential = errors.New("not logged in")

// Credential supplies the bearer token for session API calls.
type Credential interface {
	Token() (string, error)
}

// Static is a fixed token.
type Static string

func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// File reads the token from disk on every call so that a new login takes
// effect without restarting.
type File struct {
	path string
}

// NewFile creates a file-backed credential.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Token() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("read credential: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Save writes the token with owner-only permissions.
func (f *File) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(strings.TrimSpace(token)+"\n"), 0600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}
