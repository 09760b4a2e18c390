package handlers

import (
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
	"cacaowallet/internal/reserve"

	"github.com/shopspring/decimal"
)

func transactionJSON(t models.Transaction) map[string]any {
	return map[string]any{
		"id":                 t.ID,
		"user_id":            t.UserID,
		"type":               t.Type,
		"status":             t.Status,
		"fiat_amount":        money.FormatFiat(t.FiatAmount),
		"cacao_amount":       money.FormatGrams(t.CacaoAmount),
		"fee_amount":         money.FormatFiat(t.FeeAmount),
		"price_at_execution": nullPrice(t.PriceAtExecution),
		"reference":          t.Reference,
		"payment_method_id":  t.PaymentMethodID,
		"quote_id":           t.QuoteID,
		"notes":              t.Notes,
		"resolved_by":        t.ResolvedBy,
		"resolved_at":        t.ResolvedAt,
		"created_at":         t.CreatedAt,
	}
}

func pendingJSON(p models.PendingTransaction) map[string]any {
	row := transactionJSON(p.Transaction)
	row["username"] = p.Username
	row["email"] = p.Email
	row["payment_method_type"] = p.PaymentMethodType
	row["payment_method_details"] = p.PaymentMethodData
	row["physical_deposit_id"] = p.PhysicalDepositID
	return row
}

func physicalDepositJSON(d models.PhysicalDeposit) map[string]any {
	return map[string]any{
		"id":                   d.ID,
		"transaction_id":       d.TransactionID,
		"user_id":              d.UserID,
		"collection_center_id": d.CollectionCenterID,
		"gross_weight":         money.FormatGrams(d.GrossWeight),
		"quality_grade":        d.QualityGrade,
		"moisture_content":     d.MoistureContent.String(),
		"fermentation_grade":   d.FermentationGrade.String(),
		"impurities_content":   d.ImpuritiesContent.String(),
		"conversion_factor":    nullString(d.ConversionFactor),
		"final_tokens_issued":  nullGrams(d.FinalTokensIssued),
		"inspector_id":         d.InspectorID,
		"verified_at":          d.VerifiedAt,
		"created_at":           d.CreatedAt,
	}
}

func walletJSON(w models.Wallet) map[string]any {
	return map[string]any{
		"id":              w.ID,
		"fiat_balance":    money.FormatFiat(w.FiatBalance),
		"fiat_held":       money.FormatFiat(w.FiatHeld),
		"fiat_available":  money.FormatFiat(w.FiatAvailable()),
		"cacao_balance":   money.FormatGrams(w.CacaoBalance),
		"cacao_held":      money.FormatGrams(w.CacaoHeld),
		"cacao_available": money.FormatGrams(w.CacaoAvailable()),
		"is_active":       w.IsActive,
		"updated_at":      w.UpdatedAt,
	}
}

func pricesJSON(c models.SystemConfig) map[string]any {
	return map[string]any{
		"buy_price":        money.FormatPrice(c.BuyPrice),
		"sell_price":       money.FormatPrice(c.SellPrice),
		"buy_fee_percent":  c.BuyFeePercent.String(),
		"sell_fee_percent": c.SellFeePercent.String(),
		"withdrawal_fee":   money.FormatFiat(c.WithdrawalFee),
		"maintenance_fee":  money.FormatFiat(c.MaintenanceFee),
		"updated_at":       c.UpdatedAt,
	}
}

func reserveJSON(r reserve.Reserve) map[string]any {
	return map[string]any{
		"total_cacao_stock": money.FormatGrams(r.TotalCacaoStock),
		"tokens_issued":     money.FormatGrams(r.TokensIssued),
		"available_stock":   money.FormatGrams(r.AvailableStock),
	}
}

func treasuryJSON(t reserve.Treasury) map[string]any {
	return map[string]any{
		"total_fees_collected": money.FormatFiat(t.TotalFeesCollected),
		"total_withdrawn":      money.FormatFiat(t.TotalWithdrawn),
		"available_balance":    money.FormatFiat(t.AvailableBalance()),
	}
}

func nullPrice(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money.FormatPrice(d.Decimal)
	return &s
}

func nullGrams(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money.FormatGrams(d.Decimal)
	return &s
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
