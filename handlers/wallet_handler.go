package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/battlestacks/battlestacks/middleware"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/services"
)

type WalletHandler struct {
	walletService *services.WalletService
}

func NewWalletHandler(ws *services.WalletService) *WalletHandler {
	return &WalletHandler{walletService: ws}
}

// GetWalletHandler handles GET /wallet
func (h *WalletHandler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	wallet, err := h.walletService.GetWallet(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"wallet": wallet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTransactionsHandler handles GET /wallet/transactions
func (h *WalletHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	limit, offset, err := paginationParams(r, 20)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	transactions, err := h.walletService.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"transactions": transactions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RequestRedemptionHandler handles POST /wallet/redemptions
func (h *WalletHandler) RequestRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		Amount    int    `json:"amount"`
		UPIHandle string `json:"upi_handle"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	redemption, err := h.walletService.RequestRedemption(r.Context(), userID, input.Amount, input.UPIHandle)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"redemption": redemption}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SettleRedemptionHandler handles PATCH /redemptions/{redemptionID} (admin)
func (h *WalletHandler) SettleRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	redemptionID, err := getIDFromURL(r, "redemptionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.RedemptionStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	redemption, err := h.walletService.SettleRedemption(r.Context(), redemptionID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"redemption": redemption}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListRedemptionsHandler handles GET /redemptions (admin)
func (h *WalletHandler) ListRedemptionsHandler(w http.ResponseWriter, r *http.Request) {
	var status *models.RedemptionStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		s := models.RedemptionStatus(statusStr)
		status = &s
	}

	limit, offset, err := paginationParams(r, 50)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	redemptions, err := h.walletService.ListRedemptions(r.Context(), status, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"redemptions": redemptions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func paginationParams(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	query := r.URL.Query()

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("invalid limit query parameter")
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset query parameter")
		}
	}
	return limit, offset, nil
}
