package handler

import (
	"net/http"

	"github.com/mcoot/pongladder/internal/api/response"
	"github.com/mcoot/pongladder/internal/services/ledger"
)

// RankingHandler serves the ladder and its consistency check
type RankingHandler struct {
	ledgerService *ledger.Service
}

// NewRankingHandler creates a new ranking handler
func NewRankingHandler(ledgerService *ledger.Service) *RankingHandler {
	return &RankingHandler{
		ledgerService: ledgerService,
	}
}

// Get handles GET /api/v1/ranking
func (h *RankingHandler) Get(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledgerService.Ranking(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RankingFromModel(entries))
}

// Verify handles GET /api/v1/ledger/verify
func (h *RankingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.ledgerService.Verify(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.VerifyResultFromModel(drifts))
}
