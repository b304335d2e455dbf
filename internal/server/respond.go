package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"somo-backend/internal/repository"
)

// errorBody is the JSON shape of every error response. Code is a stable
// machine-readable identifier the UI switches on.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "bad_request", message)
}

// decodeJSON decodes the request body into v, answering 400 itself on
// failure. Returns false when the caller should stop.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// respondError maps typed ledger errors to status codes and stable codes.
// Anything unrecognized is a 500 eligible for client-side retry.
func respondError(w http.ResponseWriter, err error) {
	var oneMint *repository.OneMintPerWalletError
	switch {
	case errors.Is(err, repository.ErrPixelNotFound):
		writeError(w, http.StatusNotFound, "pixel_not_found", err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, repository.ErrPixelAlreadyClaimed):
		writeError(w, http.StatusConflict, "pixel_already_claimed", err.Error())
	case errors.Is(err, repository.ErrReservationConflict):
		writeError(w, http.StatusConflict, "reservation_conflict", err.Error())
	case errors.Is(err, repository.ErrReservationExpired):
		writeError(w, http.StatusGone, "reservation_expired", err.Error())
	case errors.Is(err, repository.ErrMintNumberMismatch):
		writeError(w, http.StatusUnprocessableEntity, "mint_number_mismatch", err.Error())
	case errors.Is(err, repository.ErrPixelNotClaimed):
		writeError(w, http.StatusConflict, "pixel_not_claimed", err.Error())
	case errors.Is(err, repository.ErrNotPixelOwner):
		writeError(w, http.StatusForbidden, "not_pixel_owner", err.Error())
	case errors.Is(err, repository.ErrSelfTransfer):
		badRequest(w, err.Error())
	case errors.As(err, &oneMint):
		writeJSON(w, http.StatusConflict, errorBody{
			Code:    "one_mint_per_wallet",
			Message: err.Error(),
			Details: map[string]any{"x": oneMint.X, "y": oneMint.Y},
		})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error, retry later")
	}
}
