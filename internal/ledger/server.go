package ledger

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server handles the channel webhook and the dashboard API
type Server struct {
	service     *Service
	basicAuth   BasicAuth
	webhookAuth WebhookAuth
	mux         *http.ServeMux
}

// BasicAuth holds basic authentication credentials for the dashboard API
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, webhookAuth WebhookAuth) *Server {
	return NewServerWithMux(service, basicAuth, webhookAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, webhookAuth WebhookAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:     service,
		basicAuth:   basicAuth,
		webhookAuth: webhookAuth,
		mux:         mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Finanzas"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireSignature rejects webhook calls the provider did not sign
func (s *Server) requireSignature(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.webhookAuth.enabled() {
			next(w, r)
			return
		}

		if err := r.ParseForm(); err != nil {
			slog.Error("Error parsing webhook form", "error", err)
			writeJSONError(w, "Error parsing form", http.StatusInternalServerError)
			return
		}

		if !s.webhookAuth.validSignature(r.Header.Get(signatureHeader), r.PostForm) {
			slog.Warn("Rejected webhook with invalid signature", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	// Channel webhook, signed by the provider instead of basic auth
	s.mux.HandleFunc("POST /api/webhook", s.requireSignature(s.handleWebhook))

	// Dashboard API
	s.mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	s.mux.HandleFunc("GET /api/summary", s.requireAuth(s.handleSummary))
	s.mux.HandleFunc("GET /api/years", s.requireAuth(s.handleYears))
	s.mux.HandleFunc("GET /api/messages/{id}/media", s.requireAuth(s.handleGetMessageMedia))
	s.mux.HandleFunc("GET /api/messages/{id}", s.requireAuth(s.handleGetMessage))
	s.mux.HandleFunc("GET /api/messages", s.requireAuth(s.handleListMessages))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
