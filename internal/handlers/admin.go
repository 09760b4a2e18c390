package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cacaowallet/internal/auth"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/middleware"
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
	"cacaowallet/internal/services"
	"cacaowallet/internal/store"
	"cacaowallet/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req promoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var target models.User
	var err error
	if strings.Contains(req.Identifier, "@") {
		target, err = h.users.GetByEmail(r.Context(), req.Identifier)
	} else {
		target, err = h.users.GetByUsername(r.Context(), req.Identifier)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, target.ID, false, &userID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"target_user_id": target.ID,
		})
		return h.audit.Log(r.Context(), tx, userID, "promote_admin", "admin", target.ID, string(data))
	})
	if err != nil {
		logger.ErrorCtx(r.Context(), err, zap.String("target_user_id", target.ID))
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req grantRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdminUserID == "" || !store.ValidRole(req.Role) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, userID, "grant_role", "admin_role", req.AdminUserID, string(data))
	})
	if err != nil {
		logger.ErrorCtx(r.Context(), err, zap.String("admin_user_id", req.AdminUserID))
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

type walletActiveRequest struct {
	Active bool `json:"active"`
}

// SetWalletActive freezes or unfreezes a wallet. Frozen wallets still
// receive credits but cannot spend or hold.
func (h *Handler) SetWalletActive(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req walletActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target := chi.URLParam(r, "userID")
	var affected int64
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		affected, err = h.wallets.SetActive(r.Context(), tx, target, req.Active)
		if err != nil || affected == 0 {
			return err
		}
		data, _ := json.Marshal(map[string]bool{"active": req.Active})
		return h.audit.Log(r.Context(), tx, actorID, "set_wallet_active", "wallet", target, string(data))
	})
	if err != nil {
		logger.ErrorCtx(r.Context(), err, zap.String("user_id", target))
		respondError(w, http.StatusInternalServerError, "unable to update wallet")
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "wallet not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": target, "is_active": req.Active})
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, 50, 200)
	rows, err := h.wallets.ListAllWithUsers(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load users")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		item := walletJSON(row.Wallet)
		item["user_id"] = row.UserID
		item["username"] = row.Username
		item["email"] = row.Email
		item["created_at"] = row.CreatedAt
		normalized = append(normalized, item)
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	status := models.TransactionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusCompleted, models.StatusRejected:
	default:
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	limit, offset := page(r, 50, 200)
	rows, err := h.transactions.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, transactionJSON(row))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, 50, 200)
	rows, err := h.audit.List(r.Context(), r.URL.Query().Get("entity_type"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	if rows == nil {
		rows = []models.AuditLog{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile compares every wallet with its ledger sums and customer tokens
// with the reserve.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.settlement.Reconcile(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeServiceError(w, r, err, "unable to reconcile balances")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type maintenanceFeeRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

func (h *Handler) ChargeMaintenanceFee(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req maintenanceFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount := decimal.Zero
	if req.Amount != "" {
		parsed, err := parseFiat(req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		amount = parsed
	}
	t, err := h.settlement.ChargeMaintenanceFee(r.Context(), services.MaintenanceFeeRequest{UserID: req.UserID, Amount: amount, OperatorID: operatorID})
	if err != nil {
		writeServiceError(w, r, err, "maintenance_fee_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

func (h *Handler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	treasury, err := h.settlement.Treasury(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "unable to load treasury")
		return
	}
	respondJSON(w, http.StatusOK, treasuryJSON(treasury))
}

func (h *Handler) ListTreasuryWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, 50, 200)
	rows, err := h.treasury.ListTreasuryWithdrawals(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load treasury withdrawals")
		return
	}
	if rows == nil {
		rows = []store.TreasuryWithdrawal{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type treasuryWithdrawalRequest struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
	Notes       string `json:"notes"`
}

func (h *Handler) WithdrawTreasury(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req treasuryWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseFiat(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	withdrawal, treasury, err := h.settlement.WithdrawTreasury(r.Context(), services.TreasuryWithdrawalRequest{
		Amount:      amount,
		Destination: req.Destination,
		Notes:       req.Notes,
		OperatorID:  operatorID,
	})
	if err != nil {
		writeServiceError(w, r, err, "treasury_withdrawal_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"withdrawal": withdrawal,
		"treasury":   treasuryJSON(treasury),
	})
}

func (h *Handler) ListStockIntakes(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, 50, 200)
	rows, err := h.treasury.ListStockIntakes(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stock intakes")
		return
	}
	if rows == nil {
		rows = []store.StockIntake{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type stockIntakeRequest struct {
	Grams              string `json:"grams"`
	CollectionCenterID string `json:"collection_center_id"`
	Notes              string `json:"notes"`
}

// IntakeStock records platform-owned cacao arriving at a collection center.
func (h *Handler) IntakeStock(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req stockIntakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grams, err := parseGrams(req.Grams)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	intake, updated, err := h.settlement.IntakeStock(r.Context(), services.StockIntakeRequest{
		Grams:              grams,
		CollectionCenterID: req.CollectionCenterID,
		Notes:              req.Notes,
		OperatorID:         operatorID,
	})
	if err != nil {
		writeServiceError(w, r, err, "stock_intake_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"intake":  intake,
		"reserve": reserveJSON(updated),
	})
}

type priceUpdateRequest struct {
	BuyPrice       string `json:"buy_price"`
	SellPrice      string `json:"sell_price"`
	BuyFeePercent  string `json:"buy_fee_percent"`
	SellFeePercent string `json:"sell_fee_percent"`
	WithdrawalFee  string `json:"withdrawal_fee"`
	MaintenanceFee string `json:"maintenance_fee"`
}

func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req priceUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	update := services.PriceUpdate{OperatorID: operatorID}
	fields := []struct {
		name   string
		raw    string
		places int32
		dest   *decimal.Decimal
	}{
		{"buy_price", req.BuyPrice, money.PricePlaces, &update.BuyPrice},
		{"sell_price", req.SellPrice, money.PricePlaces, &update.SellPrice},
		{"buy_fee_percent", req.BuyFeePercent, money.PercentPlaces, &update.BuyFeePercent},
		{"sell_fee_percent", req.SellFeePercent, money.PercentPlaces, &update.SellFeePercent},
		{"withdrawal_fee", req.WithdrawalFee, money.FiatPlaces, &update.WithdrawalFee},
		{"maintenance_fee", req.MaintenanceFee, money.FiatPlaces, &update.MaintenanceFee},
	}
	for _, f := range fields {
		value, err := money.Parse(f.raw, f.places)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_failed", "field": f.name, "reason": err.Error()})
			return
		}
		*f.dest = value
	}
	cfg, err := h.settlement.UpdatePrices(r.Context(), update)
	if err != nil {
		writeServiceError(w, r, err, "price_update_failed")
		return
	}
	respondJSON(w, http.StatusOK, pricesJSON(cfg))
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.wsClaims(w, r)
	if !ok {
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

// WSOperator streams settlement events to admins allowed to settle.
func (h *Handler) WSOperator(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.wsClaims(w, r)
	if !ok {
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusForbidden, "admin privileges required")
		return
	}
	if !isSuper {
		allowed, err := h.admin.HasRole(r.Context(), claims.UserID, store.RoleCanSettle)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to verify role")
			return
		}
		if !allowed {
			respondError(w, http.StatusForbidden, "missing required role")
			return
		}
	}
	websocket.ServeOperatorWS(w, r, h.hub)
}

// wsToken also reads the token query parameter since browsers cannot set
// headers on a websocket handshake. Only the websocket routes accept it.
func wsToken(r *http.Request) (string, bool) {
	if token, ok := middleware.BearerToken(r); ok {
		return token, true
	}
	token := r.URL.Query().Get("token")
	return token, token != ""
}

func (h *Handler) wsClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token, ok := wsToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing token")
		return nil, false
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return nil, false
	}
	return claims, true
}
