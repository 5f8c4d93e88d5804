package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

type PayoutType string

const (
	PayoutBankTransfer PayoutType = "bank_transfer"
	PayoutMobileMoney  PayoutType = "mobile_money"
	PayoutPayPal       PayoutType = "paypal"
	PayoutPayShap      PayoutType = "payshap"
	PayoutMulticaixa   PayoutType = "multicaixa"
	PayoutEWallet      PayoutType = "ewallet"
)

var payoutLabels = map[PayoutType]string{
	PayoutBankTransfer: "Bank Transfer",
	PayoutMobileMoney:  "Mobile Money",
	PayoutPayPal:       "PayPal",
	PayoutPayShap:      "PayShap",
	PayoutMulticaixa:   "Multicaixa",
	PayoutEWallet:      "E-Wallet",
}

func (t PayoutType) Label() string { return payoutLabels[t] }

func (t PayoutType) Valid() bool {
	_, ok := payoutLabels[t]
	return ok
}

var ErrInvalidPayoutDetails = errors.New("invalid payout method details")

// DetailsError names the offending field. It unwraps to ErrInvalidPayoutDetails.
type DetailsError struct {
	Field  string
	Reason string
}

func (e *DetailsError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidPayoutDetails, e.Field, e.Reason)
}

func (e *DetailsError) Unwrap() error { return ErrInvalidPayoutDetails }

// PayoutDetails is the closed set of payout method variants. Every variant is
// validated when it is parsed, so holders of a PayoutDetails can trust its fields.
type PayoutDetails interface {
	Kind() PayoutType
	Validate() error
	// Descriptor is a masked, human readable destination used on payouts.
	Descriptor() string
}

type BankTransfer struct {
	AccountHolderName string `json:"account_holder_name"`
	AccountNumber     string `json:"account_number"`
	BankName          string `json:"bank_name"`
	IBAN              string `json:"iban"`
	SwiftCode         string `json:"swift_code,omitempty"`
	BranchCode        string `json:"branch_code,omitempty"`
	AccountType       string `json:"account_type,omitempty"`
}

type MobileMoney struct {
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phone_number"`
	AccountName string `json:"account_name"`
	Network     string `json:"network,omitempty"`
}

type PayPal struct {
	Email       string `json:"email"`
	AccountName string `json:"account_name"`
}

type PayShap struct {
	PhoneNumber string `json:"phone_number"`
	AccountName string `json:"account_name"`
	Provider    string `json:"provider,omitempty"`
}

type Multicaixa struct {
	PhoneNumber string `json:"phone_number"`
	AccountName string `json:"account_name"`
	Network     string `json:"network"`
}

type EWallet struct {
	WalletAddress string `json:"wallet_address"`
	WalletType    string `json:"wallet_type"`
	Provider      string `json:"provider,omitempty"`
}

func (BankTransfer) Kind() PayoutType { return PayoutBankTransfer }
func (MobileMoney) Kind() PayoutType  { return PayoutMobileMoney }
func (PayPal) Kind() PayoutType       { return PayoutPayPal }
func (PayShap) Kind() PayoutType      { return PayoutPayShap }
func (Multicaixa) Kind() PayoutType   { return PayoutMulticaixa }
func (EWallet) Kind() PayoutType      { return PayoutEWallet }

var (
	ibanRe  = regexp.MustCompile(`(?i)^[A-Z]{2}\d{2}[A-Z0-9]{1,30}$`)
	e164Re  = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	phoneRe = regexp.MustCompile(`^\+?\d{6,20}$`)
)

func (b BankTransfer) Validate() error {
	if err := required("account_holder_name", b.AccountHolderName, 255); err != nil {
		return err
	}
	if err := required("account_number", b.AccountNumber, 50); err != nil {
		return err
	}
	if err := required("bank_name", b.BankName, 255); err != nil {
		return err
	}
	if err := required("iban", b.IBAN, 34); err != nil {
		return err
	}
	if !ibanRe.MatchString(b.IBAN) {
		return &DetailsError{Field: "iban", Reason: "is not a valid IBAN"}
	}
	if err := optional("swift_code", b.SwiftCode, 11); err != nil {
		return err
	}
	if err := optional("branch_code", b.BranchCode, 20); err != nil {
		return err
	}
	return oneOf("account_type", b.AccountType, false, "savings", "checking")
}

func (m MobileMoney) Validate() error {
	if err := required("provider", m.Provider, 100); err != nil {
		return err
	}
	if err := required("phone_number", m.PhoneNumber, 20); err != nil {
		return err
	}
	if !e164Re.MatchString(m.PhoneNumber) {
		return &DetailsError{Field: "phone_number", Reason: "must be in E.164 format"}
	}
	if err := required("account_name", m.AccountName, 255); err != nil {
		return err
	}
	return optional("network", m.Network, 100)
}

func (p PayPal) Validate() error {
	if err := required("email", p.Email, 255); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return &DetailsError{Field: "email", Reason: "is not a valid email address"}
	}
	return required("account_name", p.AccountName, 255)
}

func (p PayShap) Validate() error {
	if err := phone("phone_number", p.PhoneNumber); err != nil {
		return err
	}
	if err := required("account_name", p.AccountName, 255); err != nil {
		return err
	}
	return optional("provider", p.Provider, 100)
}

func (m Multicaixa) Validate() error {
	if err := phone("phone_number", m.PhoneNumber); err != nil {
		return err
	}
	if err := required("account_name", m.AccountName, 255); err != nil {
		return err
	}
	return oneOf("network", m.Network, true, "multicaixa", "multicaixa_express", "multicaixa_instantaneo")
}

func (w EWallet) Validate() error {
	if err := required("wallet_address", w.WalletAddress, 255); err != nil {
		return err
	}
	if err := oneOf("wallet_type", w.WalletType, true, "crypto", "digital_wallet", "other"); err != nil {
		return err
	}
	return optional("provider", w.Provider, 100)
}

func (b BankTransfer) Descriptor() string {
	return fmt.Sprintf("%s %s", b.BankName, mask(b.IBAN))
}
func (m MobileMoney) Descriptor() string { return fmt.Sprintf("%s %s", m.Provider, mask(m.PhoneNumber)) }
func (p PayPal) Descriptor() string      { return "paypal " + p.Email }
func (p PayShap) Descriptor() string     { return "payshap " + mask(p.PhoneNumber) }
func (m Multicaixa) Descriptor() string  { return m.Network + " " + mask(m.PhoneNumber) }
func (w EWallet) Descriptor() string     { return w.WalletType + " " + mask(w.WalletAddress) }

// ParsePayoutDetails turns an untrusted JSON payload into the typed variant for
// t and validates it.
func ParsePayoutDetails(t PayoutType, raw []byte) (PayoutDetails, error) {
	var d PayoutDetails
	var err error
	switch t {
	case PayoutBankTransfer:
		d, err = decode[BankTransfer](raw)
	case PayoutMobileMoney:
		d, err = decode[MobileMoney](raw)
	case PayoutPayPal:
		d, err = decode[PayPal](raw)
	case PayoutPayShap:
		d, err = decode[PayShap](raw)
	case PayoutMulticaixa:
		d, err = decode[Multicaixa](raw)
	case PayoutEWallet:
		d, err = decode[EWallet](raw)
	default:
		return nil, &DetailsError{Field: "type", Reason: fmt.Sprintf("%q is not supported", t)}
	}
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decode[T PayoutDetails](raw []byte) (PayoutDetails, error) {
	var v T
	if len(raw) == 0 {
		return nil, &DetailsError{Field: "details", Reason: "are required"}
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &DetailsError{Field: "details", Reason: "must be a JSON object"}
	}
	return v, nil
}

func required(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return &DetailsError{Field: field, Reason: "is required"}
	}
	return optional(field, v, max)
}

func optional(field, v string, max int) error {
	if len(v) > max {
		return &DetailsError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func phone(field, v string) error {
	if err := required(field, v, 20); err != nil {
		return err
	}
	if !phoneRe.MatchString(v) {
		return &DetailsError{Field: field, Reason: "is not a valid phone number"}
	}
	return nil
}

func oneOf(field, v string, req bool, allowed ...string) error {
	if v == "" && !req {
		return nil
	}
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &DetailsError{Field: field, Reason: "must be one of " + strings.Join(allowed, ", ")}
}

func mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
