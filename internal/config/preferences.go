package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Preferences are the candidate's device choices
type Preferences struct {
	Speaker     bool   `yaml:"speaker"`
	Microphone  bool   `yaml:"microphone"`
	Camera      bool   `yaml:"camera"`
	VoiceGender string `yaml:"voice_gender"`
}

// DefaultPreferences turns the speaker on with a female voice
func DefaultPreferences() Preferences {
	return Preferences{
		Speaker:     true,
		VoiceGender: "female",
	}
}

// PreferencesFile persists Preferences as YAML
type PreferencesFile struct {
	mu   sync.Mutex
	path string
}

// NewPreferencesFile stores preferences in dir/preferences.yaml
func NewPreferencesFile(dir string) *PreferencesFile {
	return &PreferencesFile{path: filepath.Join(dir, "preferences.yaml")}
}

// Load returns the stored preferences, or the defaults if none are stored
func (f *PreferencesFile) Load() (Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := DefaultPreferences()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return DefaultPreferences(), fmt.Errorf("parse preferences: %w", err)
	}
	return p, nil
}

// Save writes the preferences
func (f *PreferencesFile) Save(p Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}
