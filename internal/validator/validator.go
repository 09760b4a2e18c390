package validator

import (
	"errors"
	"regexp"
	"strings"

	"cacaowallet/internal/models"
)

var (
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidBankAccount   = errors.New("invalid bank account")
	ErrInvalidCryptoAddress = errors.New("invalid crypto address")
	ErrInvalidReference     = errors.New("invalid payment reference")
)

var (
	emailRegex         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex      = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	accountNumberRegex = regexp.MustCompile(`^[0-9]{6,34}$`)
	routingNumberRegex = regexp.MustCompile(`^[0-9A-Z]{4,11}$`)
	evmAddressRegex    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	genericAddress     = regexp.MustCompile(`^[0-9a-zA-Z]{20,90}$`)
	referenceRegex     = regexp.MustCompile(`^[0-9A-Za-z\-_/\.]{4,64}$`)
)

var evmNetworks = map[string]bool{
	"ethereum": true,
	"polygon":  true,
	"arbitrum": true,
	"base":     true,
}

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// ValidateReference checks the external payment proof attached to deposits.
func ValidateReference(reference string) error {
	if !referenceRegex.MatchString(reference) {
		return ErrInvalidReference
	}
	return nil
}

func ValidatePaymentDetails(details models.PaymentDetails) error {
	switch d := details.(type) {
	case models.BankAccount:
		if strings.TrimSpace(d.BankName) == "" || strings.TrimSpace(d.AccountHolder) == "" {
			return ErrInvalidBankAccount
		}
		if !accountNumberRegex.MatchString(d.AccountNumber) {
			return ErrInvalidBankAccount
		}
		if d.RoutingNumber != "" && !routingNumberRegex.MatchString(d.RoutingNumber) {
			return ErrInvalidBankAccount
		}
		return nil
	case models.CryptoAddress:
		network := strings.ToLower(strings.TrimSpace(d.Network))
		if network == "" {
			return ErrInvalidCryptoAddress
		}
		if evmNetworks[network] {
			if !evmAddressRegex.MatchString(d.Address) {
				return ErrInvalidCryptoAddress
			}
			return nil
		}
		if !genericAddress.MatchString(d.Address) {
			return ErrInvalidCryptoAddress
		}
		return nil
	default:
		return models.ErrUnknownPaymentMethod
	}
}
