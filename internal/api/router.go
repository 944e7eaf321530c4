package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/pongladder/internal/api/apierr"
	"github.com/mcoot/pongladder/internal/api/handler"
	"github.com/mcoot/pongladder/internal/api/middleware"
	"github.com/mcoot/pongladder/internal/api/response"
	sharedmw "github.com/mcoot/pongladder/internal/middleware"
	"github.com/mcoot/pongladder/internal/services/auth"
	"github.com/mcoot/pongladder/internal/services/ledger"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger        *slog.Logger
	AuthService   *auth.Service
	LedgerService *ledger.Service
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	userHandler := handler.NewUserHandler(cfg.AuthService, cfg.LedgerService)
	matchHandler := handler.NewMatchHandler(cfg.LedgerService)
	rankingHandler := handler.NewRankingHandler(cfg.LedgerService)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := sharedmw.Logging(cfg.Logger)
	recoveryMiddleware := sharedmw.Recovery(cfg.Logger, apierr.WritePanic)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Public user routes
	api.HandleFunc("/users/register", userHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/login", userHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/users/{username}/stats", userHandler.Stats).Methods(http.MethodGet)
	api.HandleFunc("/users/{username}/history", userHandler.History).Methods(http.MethodGet)

	// Protected user routes
	usersProtected := api.PathPrefix("/users").Subrouter()
	usersProtected.Use(authMiddleware)
	usersProtected.HandleFunc("/logout", userHandler.Logout).Methods(http.MethodPost)
	usersProtected.HandleFunc("/me", userHandler.GetMe).Methods(http.MethodGet)

	// Read-only ledger routes
	api.HandleFunc("/ranking", rankingHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/ledger/verify", rankingHandler.Verify).Methods(http.MethodGet)
	api.HandleFunc("/matches", matchHandler.List).Methods(http.MethodGet)

	// Ledger writes require a session
	matchesProtected := api.PathPrefix("/matches").Subrouter()
	matchesProtected.Use(authMiddleware)
	matchesProtected.HandleFunc("", matchHandler.Record).Methods(http.MethodPost)
	matchesProtected.HandleFunc("/last", matchHandler.DeleteLast).Methods(http.MethodDelete)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
