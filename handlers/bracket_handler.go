package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/battlestacks/battlestacks/middleware"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/services"
)

type BracketHandler struct {
	bracketService services.BracketService
}

func NewBracketHandler(bs services.BracketService) *BracketHandler {
	return &BracketHandler{bracketService: bs}
}

// GenerateHandler handles POST /tournaments/{tournamentID}/bracket
func (h *BracketHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.bracketService.GenerateBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResetHandler handles POST /tournaments/{tournamentID}/bracket/reset
func (h *BracketHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.bracketService.ResetBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceWinnerHandler handles POST /tournaments/{tournamentID}/bracket/advance
func (h *BracketHandler) AdvanceWinnerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Round    int    `json:"round"`
		Matchup  int    `json:"matchup"`
		TeamName string `json:"team_name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if strings.TrimSpace(input.TeamName) == "" {
		badRequestResponse(w, r, errors.New("team_name is required"))
		return
	}

	tournament, err := h.bracketService.AdvanceWinner(r.Context(), id, input.Round, input.Matchup, input.TeamName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RemoveTeamHandler handles POST /tournaments/{tournamentID}/bracket/remove-team
func (h *BracketHandler) RemoveTeamHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		TeamName string   `json:"team_name"`
		GameIDs  []string `json:"game_ids"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if strings.TrimSpace(input.TeamName) == "" {
		badRequestResponse(w, r, errors.New("team_name is required"))
		return
	}

	tournament, err := h.bracketService.RemoveTeam(r.Context(), id, models.BracketTeam{
		TeamName: input.TeamName,
		GameIDs:  input.GameIDs,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeclareWinnerHandler handles POST /tournaments/{tournamentID}/winner
func (h *BracketHandler) DeclareWinnerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	adminID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to declare a winner")
		return
	}

	winnerLog, err := h.bracketService.DeclareWinner(r.Context(), id, adminID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"winner_log": winnerLog}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DetailsHandler handles GET /tournaments/{tournamentID}/details
func (h *BracketHandler) DetailsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	details, err := h.bracketService.GetTournamentDetails(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, details, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
