package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"cacaowallet/internal/logger"
	"cacaowallet/internal/middleware"
	"cacaowallet/internal/models"
	"cacaowallet/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.GetByUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	respondJSON(w, http.StatusOK, walletJSON(wallet))
}

// SelfCheck compares the caller's stored balances with the ledger sums.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	report, err := h.settlement.Reconcile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "unable to self_check")
		return
	}
	rows := make([]map[string]any, 0, len(report.Wallets))
	for _, row := range report.Wallets {
		rows = append(rows, map[string]any{
			"wallet_id":        row.WalletID,
			"fiat_balance":     row.FiatBalance.String(),
			"fiat_ledger_sum":  row.FiatLedgerSum.String(),
			"fiat_difference":  row.FiatDifference.String(),
			"cacao_balance":    row.CacaoBalance.String(),
			"cacao_ledger_sum": row.CacaoLedgerSum.String(),
			"cacao_difference": row.CacaoDifference.String(),
		})
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	txType := models.TransactionType(r.URL.Query().Get("type"))
	if txType != "" && !txType.Valid() {
		respondError(w, http.StatusBadRequest, "invalid type")
		return
	}
	limit, offset := page(r, 20, 100)
	transactions, err := h.transactions.ListByUser(r.Context(), userID, txType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(transactions))
	for _, t := range transactions {
		normalized = append(normalized, transactionJSON(t))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	t, err := h.transactions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "transaction not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load transaction")
		return
	}
	if t.UserID != userID {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	respondJSON(w, http.StatusOK, transactionJSON(t))
}

func (h *Handler) ListPhysicalDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := page(r, 20, 100)
	deposits, err := h.physicalDeposits.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load deposits")
		return
	}
	normalized := make([]map[string]any, 0, len(deposits))
	for _, d := range deposits {
		normalized = append(normalized, physicalDepositJSON(d))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetReserve(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.settlement.Reserve(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "unable to load reserve")
		return
	}
	respondJSON(w, http.StatusOK, reserveJSON(snapshot))
}

func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.settlement.Prices(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "unable to load prices")
		return
	}
	respondJSON(w, http.StatusOK, pricesJSON(prices))
}

func (h *Handler) ListCollectionCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := h.collectionCenters.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load collection centers")
		return
	}
	respondJSON(w, http.StatusOK, centers)
}

type paymentMethodRequest struct {
	Type    models.PaymentMethodType `json:"type"`
	Label   string                   `json:"label"`
	Details json.RawMessage          `json:"details"`
}

func (h *Handler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req paymentMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	details, err := models.DecodePaymentDetails(req.Type, req.Details)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payment method")
		return
	}
	if err := validator.ValidatePaymentDetails(details); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	pm := models.PaymentMethod{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    details.Kind(),
		Label:   req.Label,
		Details: details,
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.paymentMethods.Create(r.Context(), tx, pm); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"type": string(pm.Type), "label": pm.Label})
		return h.audit.Log(r.Context(), tx, userID, "create_payment_method", "payment_method", pm.ID, string(data))
	})
	if err != nil {
		logger.ErrorCtx(r.Context(), err, zap.String("user_id", userID))
		respondError(w, http.StatusInternalServerError, "unable to save payment method")
		return
	}
	respondJSON(w, http.StatusCreated, pm)
}

func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	methods, err := h.paymentMethods.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load payment methods")
		return
	}
	if methods == nil {
		methods = []models.PaymentMethod{}
	}
	respondJSON(w, http.StatusOK, methods)
}
