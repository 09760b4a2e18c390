package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cacaowallet/internal/db"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/services"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be absent.
// An empty body, chunked or not, leaves dest untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

// writeServiceError maps settlement errors to responses. End users never see
// reserve figures; operators get the specific reason.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "validation_failed",
			"field":  verr.Field,
			"reason": verr.Reason,
		})
	case errors.Is(err, services.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_failed")
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, services.ErrInsufficientReserve):
		respondError(w, http.StatusUnprocessableEntity, "insufficient market liquidity")
	case errors.Is(err, services.ErrInsufficientTreasury):
		respondError(w, http.StatusUnprocessableEntity, "insufficient_treasury")
	case errors.Is(err, services.ErrWalletInactive):
		respondError(w, http.StatusUnprocessableEntity, "wallet_inactive")
	case errors.Is(err, services.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, "already processed by another session")
	case db.IsUniqueViolation(err):
		respondError(w, http.StatusConflict, "duplicate_request")
	case errors.Is(err, services.ErrQuoteNotFound):
		respondError(w, http.StatusNotFound, "quote_not_found")
	case errors.Is(err, services.ErrQuoteExpired):
		respondError(w, http.StatusGone, "quote_expired")
	case errors.Is(err, services.ErrQuoteConsumed):
		respondError(w, http.StatusConflict, "quote_consumed")
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, services.ErrUnauthorizedOperator):
		respondError(w, http.StatusForbidden, "operator_not_authorized")
	default:
		logger.ErrorCtx(r.Context(), err, zap.String("path", r.URL.Path), zap.String("method", r.Method))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// page reads page/limit query parameters, capping limit at max.
func page(r *http.Request, defaultLimit, max int) (int, int) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), defaultLimit)
	if limit > max {
		limit = max
	}
	p := parseInt(query.Get("page"), 1)
	return limit, (p - 1) * limit
}
