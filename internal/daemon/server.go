package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/intervue/internal/auth"
	"github.com/felixgeelhaar/intervue/internal/config"
	"github.com/felixgeelhaar/intervue/internal/interviewer"
	"github.com/felixgeelhaar/intervue/internal/llm"
	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/felixgeelhaar/intervue/internal/sessionapi"
)

// Version is reported by the status endpoint
var Version = "0.1.0"

// providerOrder fixes registration order so "auto" picks deterministically
var providerOrder = []string{"mistral", "claude", "openai", "ollama"}

// Server represents the intervue daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux
	logger *slog.Logger

	// Services
	llmRegistry *llm.Registry
	signer      *auth.Signer
	quota       *quota.Tracker
	interviews  *session.Service
	metrics     *Metrics
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config     *config.LocalConfig
	Store      session.Store
	QuotaStore quota.Store

	// Publisher receives completion events. Nil disables events.
	Publisher session.EventPublisher

	// Registry overrides the providers built from Config.LLM
	Registry *llm.Registry

	Logger *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("server config is required")
	}
	if cfg.Store == nil || cfg.QuotaStore == nil {
		return nil, errors.New("interview and quota stores are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg.Config,
		router:  http.NewServeMux(),
		logger:  logger,
		metrics: NewMetrics(),
	}

	authCfg := cfg.Config.Daemon.Auth
	signer, err := auth.NewSigner(authCfg.Secret, authCfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("create token signer: %w", err)
	}
	s.signer = signer

	// Initialize LLM registry
	registry := cfg.Registry
	if registry == nil {
		registry = llm.NewRegistry()
		s.setupLLMProviders(registry)
	}
	if err := registry.SetDefault(cfg.Config.LLM.DefaultProvider); err != nil {
		logger.Warn("default LLM provider not available, using first registered", "error", err)
	}
	s.llmRegistry = registry

	ivCfg := interviewer.DefaultConfig()
	ivCfg.Logger = logger
	provider, err := registry.Default()
	switch {
	case errors.Is(err, llm.ErrNoDefaultProvider):
		logger.Warn("no LLM provider configured, interviews use scripted questions")
	case err != nil:
		return nil, fmt.Errorf("select llm provider: %w", err)
	default:
		ivCfg.Provider = provider
		if p, ok := cfg.Config.LLM.Providers[provider.Name()]; ok {
			ivCfg.Model = p.Model
		}
	}

	tracker, err := quota.New(cfg.QuotaStore, quota.Config{
		DailyLimit: cfg.Config.Daemon.Quota.DailyLimit,
		Timezone:   cfg.Config.Daemon.Quota.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("create quota tracker: %w", err)
	}
	s.quota = tracker

	s.interviews = session.NewService(cfg.Store, tracker, interviewer.New(ivCfg), logger)
	if cfg.Publisher != nil {
		s.interviews.SetEventPublisher(cfg.Publisher)
	}

	if _, err := s.interviews.AbandonOpen(ctx); err != nil {
		logger.Warn("failed to abandon open interviews", "error", err)
	}

	// Setup routes
	s.setupRoutes()

	// Create HTTP server with middleware chain
	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM calls can be slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupLLMProviders registers every enabled provider that has credentials,
// each wrapped with retry, circuit breaking and rate limiting
func (s *Server) setupLLMProviders(registry *llm.Registry) {
	resilience := llm.DefaultResilientConfig()
	resilience.Logger = s.logger

	for _, name := range providerOrder {
		providerCfg, ok := s.cfg.LLM.Providers[name]
		if !ok || !providerCfg.Enabled {
			continue
		}

		var provider llm.Provider
		switch name {
		case "mistral":
			if providerCfg.APIKey == "" {
				s.logger.Debug("Mistral provider enabled but no API key set")
				continue
			}
			provider = llm.NewMistralProvider(llm.MistralConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			})

		case "claude":
			if providerCfg.APIKey == "" {
				s.logger.Debug("Claude provider enabled but no API key set")
				continue
			}
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			})

		case "openai":
			if providerCfg.APIKey == "" {
				s.logger.Debug("OpenAI provider enabled but no API key set")
				continue
			}
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			})

		case "ollama":
			provider = llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		}

		registry.Register(name, llm.NewResilientProvider(provider, resilience))
		s.logger.Info("registered LLM provider", "name", name, "model", providerCfg.Model)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.Handle("GET /metrics", s.metrics.Handler())

	// Quota
	s.router.HandleFunc("GET /v1/interviews/limits", s.authenticated(s.handleLimits))
	s.router.HandleFunc("POST /v1/interviews/reset-quota", s.authenticated(s.handleResetQuota))

	// Interviews
	s.router.HandleFunc("POST /v1/interviews", s.authenticated(s.handleStartInterview))
	s.router.HandleFunc("GET /v1/interviews/{id}", s.authenticated(s.handleGetInterview))
	s.router.HandleFunc("POST /v1/interviews/{id}/reply", s.authenticated(s.handleReply))
	s.router.HandleFunc("POST /v1/interviews/{id}/end", s.authenticated(s.handleEndInterview))
	s.router.HandleFunc("GET /v1/interviews/{id}/transcript", s.authenticated(s.handleTranscript))
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return correlationIDMiddleware(
		recoveryMiddleware(s.logger,
			loggingMiddleware(s.logger,
				s.metrics.Middleware(s.router))))
}

// Interviews exposes the interview service, e.g. for maintenance commands
func (s *Server) Interviews() *session.Service {
	return s.interviews
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting intervue daemon",
		"addr", s.server.Addr,
		"llm_providers", s.llmRegistry.List(),
		"quota_daily_limit", s.quota.Limit(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	for _, name := range s.llmRegistry.List() {
		p, err := s.llmRegistry.Get(name)
		if err != nil {
			continue
		}
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				s.logger.Warn("failed to close provider", "name", name, "error", err)
			}
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"version":       Version,
		"llm_providers": s.llmRegistry.List(),
		"storage":       s.cfg.Daemon.Storage.Driver,
		"daily_limit":   s.quota.Limit(),
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, code, message string, err error) {
	response := sessionapi.ErrorResponse{
		Error:  message,
		Status: status,
		Code:   code,
	}
	if err != nil && status < http.StatusInternalServerError {
		response.Details = err.Error()
	}
	s.jsonResponse(w, status, response)
}
