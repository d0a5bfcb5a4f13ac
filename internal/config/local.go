package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoResume is returned when no resume feedback has been saved.
var ErrNoResume = errors.New("no resume feedback saved")

// LocalConfig holds configuration for the CLI and the local daemon
type LocalConfig struct {
	Client ClientConfig `yaml:"client"`
	Daemon DaemonConfig `yaml:"daemon"`
	LLM    LLMConfig    `yaml:"llm"`
}

// ClientConfig holds settings for the interview client
type ClientConfig struct {
	ServerURL string       `yaml:"server_url"`
	Locale    string       `yaml:"locale"`
	Speech    SpeechConfig `yaml:"speech"`
	Camera    CameraConfig `yaml:"camera"`
}

// SpeechConfig selects the speech engines
type SpeechConfig struct {
	Synthesizer string  `yaml:"synthesizer"` // say, none
	Rate        float64 `yaml:"rate"`
	Recognizer  string  `yaml:"recognizer"` // ws, none
	URL         string  `yaml:"url,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Microphone  string  `yaml:"microphone,omitempty"`
	APIKey      string  `yaml:"-"` // Loaded from secrets.yaml
}

// CameraConfig holds presence detection settings
type CameraConfig struct {
	FFmpegPath     string `yaml:"ffmpeg_path,omitempty"`
	Device         string `yaml:"device,omitempty"`
	DetectorURL    string `yaml:"detector_url,omitempty"`
	DetectorAPIKey string `yaml:"-"` // Loaded from secrets.yaml
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int           `yaml:"port"`
	Bind     string        `yaml:"bind"`
	LogLevel string        `yaml:"log_level"`
	Storage  StorageConfig `yaml:"storage"`
	Quota    QuotaConfig   `yaml:"quota"`
	Auth     AuthConfig    `yaml:"auth"`
	Queue    QueueConfig   `yaml:"queue"`
}

// StorageConfig selects the interview store
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	Path   string `yaml:"path,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	// BusyTimeoutMS bounds how long a sqlite writer waits for the lock
	BusyTimeoutMS int `yaml:"busy_timeout_ms,omitempty"`
}

// DefaultBusyTimeoutMS is the sqlite lock wait used when none is configured
const DefaultBusyTimeoutMS = 5000

// BusyTimeout returns the configured lock wait, falling back to the default
func (s StorageConfig) BusyTimeout() time.Duration {
	ms := s.BusyTimeoutMS
	if ms <= 0 {
		ms = DefaultBusyTimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

// QuotaConfig holds the daily interview allowance
type QuotaConfig struct {
	DailyLimit int    `yaml:"daily_limit"`
	Timezone   string `yaml:"timezone"`
}

// AuthConfig holds token settings
type AuthConfig struct {
	Issuer        string `yaml:"issuer"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
	Secret        string `yaml:"-"` // Loaded from secrets.yaml
}

// QueueConfig holds the event broker settings. An empty URL disables events.
type QueueConfig struct {
	URL      string `yaml:"url,omitempty"`
	Exchange string `yaml:"exchange"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a single LLM provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"` // For Ollama
	APIKey  string `yaml:"-"`             // Loaded from secrets.yaml
}

// SecretKey is a single API key entry in secrets.yaml
type SecretKey struct {
	APIKey string `yaml:"api_key"`
}

// SecretsConfig holds keys loaded from secrets.yaml
type SecretsConfig struct {
	Providers map[string]SecretKey `yaml:"providers,omitempty"`
	Speech    SecretKey            `yaml:"speech,omitempty"`
	Detector  SecretKey            `yaml:"detector,omitempty"`
	JWTSecret string               `yaml:"jwt_secret,omitempty"`
}

// IntervueDir returns the path to ~/.intervue
func IntervueDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".intervue"), nil
}

// EnsureIntervueDir creates ~/.intervue and subdirectories if they don't exist
func EnsureIntervueDir() (string, error) {
	dir, err := IntervueDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0750); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:7437",
			Locale:    "en-US",
			Speech: SpeechConfig{
				Synthesizer: "say",
				Rate:        0.95,
				Recognizer:  "none",
			},
		},
		Daemon: DaemonConfig{
			Port:     7437,
			Bind:     "127.0.0.1",
			LogLevel: "info",
			Storage: StorageConfig{
				Driver:        "sqlite",
				BusyTimeoutMS: DefaultBusyTimeoutMS,
			},
			Quota: QuotaConfig{
				DailyLimit: 3,
				Timezone:   "Asia/Kuala_Lumpur",
			},
			Auth: AuthConfig{
				Issuer:        "intervue",
				TokenTTLHours: 24,
			},
			Queue: QueueConfig{
				Exchange: "intervue.events",
			},
		},
		LLM: LLMConfig{
			DefaultProvider: "auto",
			Providers: map[string]*ProviderConfig{
				"mistral": {
					Enabled: true,
					Model:   "mistral-small-latest",
				},
				"claude": {
					Enabled: true,
					Model:   "claude-sonnet-4-20250514",
				},
				"openai": {
					Enabled: false,
					Model:   "gpt-4o",
				},
				"ollama": {
					Enabled: false,
					URL:     "http://localhost:11434",
					Model:   "llama3",
				},
			},
		},
	}
}

// LoadLocalConfig loads configuration from ~/.intervue/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := IntervueDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads config.yaml and secrets.yaml from dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads keys from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	for name, secret := range secrets.Providers {
		if provider, ok := cfg.LLM.Providers[name]; ok {
			provider.APIKey = secret.APIKey
		}
	}
	cfg.Client.Speech.APIKey = secrets.Speech.APIKey
	cfg.Client.Camera.DetectorAPIKey = secrets.Detector.APIKey
	cfg.Daemon.Auth.Secret = secrets.JWTSecret

	return nil
}

// SaveLocalConfig saves configuration to ~/.intervue/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureIntervueDir()
	if err != nil {
		return err
	}
	return SaveLocalConfigTo(dir, cfg)
}

// SaveLocalConfigTo writes config.yaml into dir
func SaveLocalConfigTo(dir string, cfg *LocalConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves keys to ~/.intervue/secrets.yaml
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsureIntervueDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}

// CredentialPath is where the login token is stored
func CredentialPath(dir string) string {
	return filepath.Join(dir, "credential")
}

// DatabasePath is the default sqlite database location
func DatabasePath(dir string) string {
	return filepath.Join(dir, "data", "intervue.db")
}

// HistoryDir returns the directory of archived interviews
func HistoryDir(dir string) string {
	return filepath.Join(dir, "history")
}

// ResumePath is where the resume feedback is stored
func ResumePath(dir string) string {
	return filepath.Join(dir, "resume.json")
}

// LoadResumeFeedback reads the saved resume feedback
func LoadResumeFeedback(dir string) (json.RawMessage, error) {
	data, err := os.ReadFile(ResumePath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoResume
	}
	if err != nil {
		return nil, fmt.Errorf("read resume feedback: %w", err)
	}
	return json.RawMessage(data), nil
}

// SaveResumeFeedback stores resume feedback. The data must be JSON.
func SaveResumeFeedback(dir string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("resume feedback is not valid JSON")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	if err := os.WriteFile(ResumePath(dir), data, 0600); err != nil {
		return fmt.Errorf("write resume feedback: %w", err)
	}
	return nil
}
