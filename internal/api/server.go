// Package api exposes the prompt-assembly service over JSON HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantigo/vantigo/internal/embedding"
	"github.com/vantigo/vantigo/internal/impersonate"
	"github.com/vantigo/vantigo/internal/sanitize"
)

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Logger           *slog.Logger
	Assembler        PromptAssembler       // Required
	Matcher          RelevanceMatcher      // Required
	ChatbotStore     ChatbotStore          // Required
	InstructionStore InstructionStore      // Required
	Users            UserDirectory         // Required
	Codec            *impersonate.Codec    // Required
	Worker           Enqueuer              // Optional: nil skips async embed scheduling
	Cache            *embedding.Cache      // Optional: nil disables cache endpoints
	Pool             *pgxpool.Pool         // Optional: nil degrades /ready to liveness
	HMACSecret       []byte                // Required: 32+ bytes, signs the uid cookie
	ImpersonationTTL time.Duration         // 0 = impersonate.DefaultTTL
	MatcherTopK      int                   // Default k for the search endpoint
	CORSOrigins      []string
	IsDev            bool // Drops Secure cookie flags and HSTS
	TrustProxy       bool // Trust X-Real-IP/X-Forwarded-For
	RateBurst        int  // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Assembler == nil:
		return nil, errors.New("assembler is required")
	case cfg.Matcher == nil:
		return nil, errors.New("matcher is required")
	case cfg.ChatbotStore == nil:
		return nil, errors.New("chatbot store is required")
	case cfg.InstructionStore == nil:
		return nil, errors.New("instruction store is required")
	case cfg.Users == nil:
		return nil, errors.New("user directory is required")
	case cfg.Codec == nil:
		return nil, errors.New("impersonation codec is required")
	case len(cfg.HMACSecret) < 32:
		return nil, errors.New("hmac secret must be at least 32 bytes")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &assembleHandler{assembler: cfg.Assembler, screen: sanitize.NewScreen(), logger: logger}
	cb := &chatbotHandler{store: cfg.ChatbotStore, logger: logger}
	ih := &instructionHandler{
		store:    cfg.InstructionStore,
		matcher:  cfg.Matcher,
		worker:   cfg.Worker,
		cache:    cfg.Cache,
		defaultK: cfg.MatcherTopK,
		logger:   logger,
	}
	imp := &impersonationHandler{
		codec:  cfg.Codec,
		dir:    cfg.Users,
		ttl:    cfg.ImpersonationTTL,
		isDev:  cfg.IsDev,
		logger: logger,
	}

	mux := http.NewServeMux()

	// Prompt assembly
	mux.HandleFunc("POST /api/v1/assemble", ah.assemble)
	mux.HandleFunc("GET /api/v1/context/{chatbotID}", ah.readContext)

	// Chatbot CRUD and node links
	mux.HandleFunc("GET /api/v1/chatbots", cb.list)
	mux.HandleFunc("POST /api/v1/chatbots", cb.create)
	mux.HandleFunc("GET /api/v1/chatbots/{id}", cb.get)
	mux.HandleFunc("PUT /api/v1/chatbots/{id}", cb.update)
	mux.HandleFunc("DELETE /api/v1/chatbots/{id}", cb.delete)
	mux.HandleFunc("GET /api/v1/chatbots/{id}/nodes", cb.listNodes)
	mux.HandleFunc("POST /api/v1/chatbots/{id}/nodes", cb.attachNode)
	mux.HandleFunc("DELETE /api/v1/chatbots/{id}/nodes/{key}", cb.detachNode)
	mux.HandleFunc("GET /api/v1/nodes", cb.listDefinitions)

	// Instructions and relevance search
	mux.HandleFunc("GET /api/v1/instructions", ih.list)
	mux.HandleFunc("POST /api/v1/instructions", ih.create)
	mux.HandleFunc("PUT /api/v1/instructions/{id}", ih.update)
	mux.HandleFunc("DELETE /api/v1/instructions/{id}", ih.delete)
	mux.HandleFunc("POST /api/v1/instructions/search", ih.search)

	// Embedding cache
	mux.HandleFunc("GET /api/v1/cache/stats", ih.cacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", ih.cacheClear)

	// Impersonation
	mux.HandleFunc("POST /api/v1/impersonate", imp.start)
	mux.HandleFunc("DELETE /api/v1/impersonate", imp.stop)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newThrottler(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Identity →
	//   Impersonation → Routes
	// RequestID runs before Logging so request_id is available in log
	// attributes. CORS runs before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = impersonationMiddleware(cfg.Codec, cfg.Users, cfg.IsDev, logger)(handler)
	handler = identityMiddleware(cfg.Users, cfg.HMACSecret, cfg.IsDev, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
