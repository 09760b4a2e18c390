package handlers

import (
	"net/http"

	"cacaowallet/internal/conversion"
	"cacaowallet/internal/middleware"
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
	"cacaowallet/internal/services"

	"github.com/go-chi/chi/v5"
)

type quoteBuyRequest struct {
	FiatAmount string `json:"fiat_amount"`
}

func (h *Handler) QuoteBuy(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req quoteBuyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fiat, err := parseFiat(req.FiatAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	quote, err := h.settlement.QuoteBuy(r.Context(), userID, fiat)
	if err != nil {
		writeServiceError(w, r, err, "quote_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"quote_id":     quote.ID,
		"fiat_amount":  money.FormatFiat(quote.FiatAmount),
		"fee_amount":   money.FormatFiat(quote.FeeAmount),
		"cacao_amount": money.FormatGrams(quote.CacaoAmount),
		"price":        money.FormatPrice(quote.Price),
		"expires_at":   quote.ExpiresAt,
	})
}

type quoteSellRequest struct {
	CacaoAmount string `json:"cacao_amount"`
}

func (h *Handler) QuoteSell(w http.ResponseWriter, r *http.Request) {
	var req quoteSellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grams, err := parseGrams(req.CacaoAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	estimate, err := h.settlement.QuoteSell(r.Context(), grams)
	if err != nil {
		writeServiceError(w, r, err, "quote_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cacao_amount": money.FormatGrams(estimate.CacaoAmount),
		"gross_amount": money.FormatFiat(estimate.GrossAmount),
		"fee_amount":   money.FormatFiat(estimate.FeeAmount),
		"net_amount":   money.FormatFiat(estimate.NetAmount),
		"price":        money.FormatPrice(estimate.Price),
	})
}

type depositRequest struct {
	FiatAmount string `json:"fiat_amount"`
	Reference  string `json:"reference"`
	QuoteID    string `json:"quote_id"`
}

// CreateDeposit records a BUY paid by an external fiat transfer. A quote pins
// the price and amount.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	buy := services.BuyRequest{UserID: userID, Reference: req.Reference, QuoteID: req.QuoteID}
	if req.QuoteID == "" || req.FiatAmount != "" {
		fiat, err := parseFiat(req.FiatAmount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		buy.FiatAmount = fiat
	}
	t, err := h.settlement.CreateBuy(r.Context(), buy)
	if err != nil {
		writeServiceError(w, r, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

type withdrawalRequest struct {
	CacaoAmount     string `json:"cacao_amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

// CreateWithdrawal records a SELL. The grams stay held until an operator
// confirms the payout.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grams, err := parseGrams(req.CacaoAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	t, err := h.settlement.CreateSell(r.Context(), services.SellRequest{
		UserID:          userID,
		CacaoAmount:     grams,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeServiceError(w, r, err, "withdrawal_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

type fiatDepositRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

func (h *Handler) CreateFiatDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req fiatDepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseFiat(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	t, err := h.settlement.CreateFiatDeposit(r.Context(), services.FiatDepositRequest{UserID: userID, Amount: amount, Reference: req.Reference})
	if err != nil {
		writeServiceError(w, r, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

type fiatWithdrawalRequest struct {
	Amount          string `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

func (h *Handler) CreateFiatWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req fiatWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseFiat(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	t, err := h.settlement.CreateFiatWithdrawal(r.Context(), services.FiatWithdrawalRequest{UserID: userID, Amount: amount, PaymentMethodID: req.PaymentMethodID})
	if err != nil {
		writeServiceError(w, r, err, "withdrawal_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

type cacaoWithdrawalRequest struct {
	CacaoAmount        string `json:"cacao_amount"`
	CollectionCenterID string `json:"collection_center_id"`
}

func (h *Handler) CreateCacaoWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req cacaoWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grams, err := parseGrams(req.CacaoAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	t, err := h.settlement.CreateCacaoWithdrawal(r.Context(), services.CacaoWithdrawalRequest{UserID: userID, CacaoAmount: grams, CollectionCenterID: req.CollectionCenterID})
	if err != nil {
		writeServiceError(w, r, err, "withdrawal_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

type conversionRequest struct {
	Direction services.ConversionDirection `json:"direction"`
	Amount    string                       `json:"amount"`
}

func (h *Handler) CreateConversion(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req conversionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	places := money.FiatPlaces
	if req.Direction == services.DirectionCacaoToUSD {
		places = money.GramPlaces
	}
	amount, err := money.Positive(req.Amount, places)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	t, err := h.settlement.Convert(r.Context(), services.ConvertRequest{UserID: userID, Direction: req.Direction, Amount: amount})
	if err != nil {
		writeServiceError(w, r, err, "conversion_failed")
		return
	}
	respondJSON(w, http.StatusCreated, transactionJSON(t))
}

type physicalDepositRequest struct {
	CollectionCenterID string              `json:"collection_center_id"`
	GrossWeight        string              `json:"gross_weight"`
	QualityGrade       models.QualityGrade `json:"quality_grade"`
	MoistureContent    string              `json:"moisture_content"`
	FermentationGrade  string              `json:"fermentation_grade"`
	ImpuritiesContent  string              `json:"impurities_content"`
}

func (h *Handler) CreatePhysicalDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req physicalDepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	measurements, field := parseMeasurements(req)
	if field != "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_failed", "field": field, "reason": "invalid number"})
		return
	}
	t, deposit, err := h.settlement.CreatePhysicalDeposit(r.Context(), services.PhysicalDepositRequest{
		UserID:             userID,
		CollectionCenterID: req.CollectionCenterID,
		Measurements:       measurements,
	})
	if err != nil {
		writeServiceError(w, r, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"transaction":      transactionJSON(t),
		"physical_deposit": physicalDepositJSON(deposit),
	})
}

// parseMeasurements returns the name of the first malformed field, if any.
func parseMeasurements(req physicalDepositRequest) (conversion.Measurements, string) {
	m := conversion.Measurements{Grade: req.QualityGrade}
	var err error
	if m.GrossWeight, err = money.Parse(req.GrossWeight, money.GramPlaces); err != nil {
		return m, "gross_weight"
	}
	if m.Moisture, err = money.ParsePercent(req.MoistureContent); err != nil {
		return m, "moisture_content"
	}
	if m.Fermentation, err = money.ParsePercent(req.FermentationGrade); err != nil {
		return m, "fermentation_grade"
	}
	if m.Impurities, err = money.ParsePercent(req.ImpuritiesContent); err != nil {
		return m, "impurities_content"
	}
	return m, ""
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := page(r, 50, 200)
	pending, err := h.oracle.ListPending(r.Context(), operatorID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err, "unable to load pending transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(pending))
	for _, p := range pending {
		normalized = append(normalized, pendingJSON(p))
	}
	respondJSON(w, http.StatusOK, normalized)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, services.DecisionApprove)
}

func (h *Handler) RejectTransaction(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, services.DecisionReject)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, decision services.Decision) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req resolveRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var (
		t   models.Transaction
		err error
	)
	if decision == services.DecisionApprove {
		t, err = h.oracle.Approve(r.Context(), id, operatorID, req.Notes)
	} else {
		t, err = h.oracle.Reject(r.Context(), id, operatorID, req.Notes)
	}
	if err != nil {
		writeServiceError(w, r, err, "settlement_failed")
		return
	}
	respondJSON(w, http.StatusOK, transactionJSON(t))
}

type verifyRequest struct {
	Decision          services.Decision    `json:"decision"`
	Notes             string               `json:"notes"`
	GrossWeight       *string              `json:"gross_weight"`
	QualityGrade      *models.QualityGrade `json:"quality_grade"`
	MoistureContent   *string              `json:"moisture_content"`
	FermentationGrade *string              `json:"fermentation_grade"`
	ImpuritiesContent *string              `json:"impurities_content"`
}

// VerifyPhysicalDeposit settles a delivery after inspection. Measurement
// fields override what the depositor declared.
func (h *Handler) VerifyPhysicalDeposit(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Decision == "" {
		req.Decision = services.DecisionApprove
	}
	overrides, field := parseOverrides(req)
	if field != "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_failed", "field": field, "reason": "invalid number"})
		return
	}
	t, deposit, err := h.oracle.VerifyPhysicalDeposit(r.Context(), services.VerifyRequest{
		DepositID:  chi.URLParam(r, "id"),
		Decision:   req.Decision,
		Notes:      req.Notes,
		OperatorID: operatorID,
		Overrides:  overrides,
	})
	if err != nil {
		writeServiceError(w, r, err, "verification_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transaction":      transactionJSON(t),
		"physical_deposit": physicalDepositJSON(deposit),
	})
}

func parseOverrides(req verifyRequest) (*services.MeasurementOverrides, string) {
	o := &services.MeasurementOverrides{Grade: req.QualityGrade}
	var err error
	if o.GrossWeight, err = parseOptional(req.GrossWeight, money.GramPlaces); err != nil {
		return nil, "gross_weight"
	}
	if o.Moisture, err = parseOptional(req.MoistureContent, money.PercentPlaces); err != nil {
		return nil, "moisture_content"
	}
	if o.Fermentation, err = parseOptional(req.FermentationGrade, money.PercentPlaces); err != nil {
		return nil, "fermentation_grade"
	}
	if o.Impurities, err = parseOptional(req.ImpuritiesContent, money.PercentPlaces); err != nil {
		return nil, "impurities_content"
	}
	if o.GrossWeight == nil && o.Grade == nil && o.Moisture == nil && o.Fermentation == nil && o.Impurities == nil {
		return nil, ""
	}
	return o, ""
}
