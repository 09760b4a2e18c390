package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PaymentMethodType string

const (
	PaymentBankAccount   PaymentMethodType = "BANK_ACCOUNT"
	PaymentCryptoAddress PaymentMethodType = "CRYPTO_ADDRESS"
)

var ErrUnknownPaymentMethod = errors.New("unknown payment method type")

// PaymentDetails is implemented by BankAccount and CryptoAddress.
type PaymentDetails interface {
	Kind() PaymentMethodType
}

type BankAccount struct {
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number,omitempty"`
}

func (BankAccount) Kind() PaymentMethodType { return PaymentBankAccount }

type CryptoAddress struct {
	Network string `json:"network"`
	Address string `json:"address"`
}

func (CryptoAddress) Kind() PaymentMethodType { return PaymentCryptoAddress }

type PaymentMethod struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      PaymentMethodType `json:"type"`
	Label     string            `json:"label"`
	Details   PaymentDetails    `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}

// DecodePaymentDetails turns the stored JSON document back into the variant
// named by kind.
func DecodePaymentDetails(kind PaymentMethodType, raw []byte) (PaymentDetails, error) {
	switch kind {
	case PaymentBankAccount:
		var details BankAccount
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, fmt.Errorf("decode bank account: %w", err)
		}
		return details, nil
	case PaymentCryptoAddress:
		var details CryptoAddress
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, fmt.Errorf("decode crypto address: %w", err)
		}
		return details, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, kind)
	}
}
