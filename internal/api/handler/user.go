package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/pongladder/internal/api/middleware"
	"github.com/mcoot/pongladder/internal/api/request"
	"github.com/mcoot/pongladder/internal/api/response"
	"github.com/mcoot/pongladder/internal/services/auth"
	"github.com/mcoot/pongladder/internal/services/ledger"
)

// UserHandler handles user-related endpoints
type UserHandler struct {
	authService   *auth.Service
	ledgerService *ledger.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *auth.Service, ledgerService *ledger.Service) *UserHandler {
	return &UserHandler{
		authService:   authService,
		ledgerService: ledgerService,
	}
}

// Register handles POST /api/v1/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	user, err := h.authService.RegisterUser(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.UserFromModel(user))
}

// Login handles POST /api/v1/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.SetSessionCookie(w, middleware.SessionCookie, session.Token, session.ExpiresAt)
	response.JSON(w, http.StatusOK, response.AuthResponse{
		User:         response.UserFromModel(user),
		SessionToken: session.Token,
	})
}

// Logout handles POST /api/v1/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	h.authService.InvalidateSession(session.Token)
	response.ClearSessionCookie(w, middleware.SessionCookie)
	response.NoContent(w)
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())

	user, err := h.ledgerService.User(r.Context(), session.Username)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

// Stats handles GET /api/v1/users/{username}/stats
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	stats, err := h.ledgerService.UserStats(r.Context(), username)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserStatsFromModel(stats))
}

// History handles GET /api/v1/users/{username}/history
func (h *UserHandler) History(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	limit, err := limitParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	points, err := h.ledgerService.RatingHistory(r.Context(), username, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RatingHistoryFromModel(username, points))
}
