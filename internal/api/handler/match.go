package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mcoot/pongladder/internal/api/request"
	"github.com/mcoot/pongladder/internal/api/response"
	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/services/ledger"
)

// MatchHandler handles the match ledger endpoints
type MatchHandler struct {
	ledgerService *ledger.Service
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(ledgerService *ledger.Service) *MatchHandler {
	return &MatchHandler{
		ledgerService: ledgerService,
	}
}

// Record handles POST /api/v1/matches
func (h *MatchHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req request.RecordMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.PlayerA == "" || req.PlayerB == "" {
		WriteError(w, NewInvalidRequestError("player_a and player_b are required"))
		return
	}

	var (
		match *model.Match
		err   error
	)
	switch {
	case req.Result != "" && req.Winner != "":
		WriteError(w, NewInvalidRequestError("specify either result or winner, not both"))
		return
	case req.Winner != "":
		match, err = h.ledgerService.RecordWin(r.Context(), req.PlayerA, req.PlayerB, req.Winner)
	case req.Result != "":
		var result model.Result
		result, err = model.ParseResult(req.Result)
		if err == nil {
			match, err = h.ledgerService.RecordMatch(r.Context(), req.PlayerA, req.PlayerB, result)
		}
	default:
		WriteError(w, NewInvalidRequestError("result or winner is required"))
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.MatchFromModel(match))
}

// DeleteLast handles DELETE /api/v1/matches/last
func (h *MatchHandler) DeleteLast(w http.ResponseWriter, r *http.Request) {
	match, err := h.ledgerService.DeleteLastMatch(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MatchFromModel(match))
}

// List handles GET /api/v1/matches
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	matches, err := h.ledgerService.RecentMatches(r.Context(), limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MatchListFromModel(matches))
}

// limitParam reads the optional positive ?limit= query parameter; zero means unset
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, NewInvalidRequestError("limit must be a positive integer")
	}
	return limit, nil
}
