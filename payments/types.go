package payments

import "fmt"

// BankAccount is the nested account block of a beneficiary.
type BankAccount struct {
	Country         string `json:"country"`
	BankName        string `json:"bankName"`
	AccountType     string `json:"accountType"`
	TransferType    string `json:"transferType"`
	AccountNumber   string `json:"accountNumber"`
	RoutingNumber   string `json:"routingNumber,omitempty"`
	BeneficiaryName string `json:"beneficiaryName"`
	Address         string `json:"address"`
	SwiftCode       string `json:"swiftCode,omitempty"`
}

// BeneficiaryRequest creates or updates a saved payout destination.
type BeneficiaryRequest struct {
	NickName    string      `json:"nickName"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phoneNumber"`
	BankAccount BankAccount `json:"bankAccount"`
}

// WalletTransferRequest moves funds to a saved beneficiary's wallet.
type WalletTransferRequest struct {
	BeneficiaryID string `json:"beneficiaryId"`
	Amount        string `json:"amount"`
	PurposeCode   string `json:"purposeCode"`
	Description   string `json:"description,omitempty"`
}

// EmailTransferRequest sends funds addressed by recipient email.
type EmailTransferRequest struct {
	RecipientEmail string `json:"recipientEmail"`
	Amount         string `json:"amount"`
	PurposeCode    string `json:"purposeCode"`
	Note           string `json:"note,omitempty"`
}

// OfframpTransferRequest pays out to a beneficiary's bank account.
type OfframpTransferRequest struct {
	BeneficiaryID string `json:"beneficiaryId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	SourceOfFunds string `json:"sourceOfFunds"`
	PurposeCode   string `json:"purposeCode"`
}

// DepositRequest initiates an inbound funding operation.
type DepositRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	FundingSource string `json:"fundingSource"`
}

// Receipt is the API acknowledgment of an accepted operation.
type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// APIError is a non-2xx response from the payments API. Message carries the
// server's explanation when it provided one.
type APIError struct {
	HTTPCode int    `json:"-"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payments: api error %d: %s", e.HTTPCode, e.Message)
	}
	return fmt.Sprintf("payments: api error %d", e.HTTPCode)
}
