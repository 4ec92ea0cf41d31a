package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/previmed/visit-assistant/internal/compliance"
	"github.com/previmed/visit-assistant/internal/conversation"
	httpmiddleware "github.com/previmed/visit-assistant/internal/http/middleware"
	"github.com/previmed/visit-assistant/pkg/logging"
)

const bannerMessage = "🤖 Asistente IA Previmed operativo"

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	AuditHandler       *compliance.Handler
	MetricsHandler     http.Handler
	ChatLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
	AdminAuthSecret    string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/", banner)
	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		chat := r.With()
		if cfg.ChatLimiter != nil {
			chat = r.With(httpmiddleware.RateLimit(cfg.ChatLimiter, logger))
		}
		chat.Post("/chat", cfg.ChatHandler.Chat)
	}

	// Audit trail is only mounted when a database is configured.
	if cfg.AuditHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, logger))
			admin.Get("/audit/events", cfg.AuditHandler.ListEvents)
		})
	}

	return r
}

func banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mensaje": bannerMessage})
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
