package flows

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/finwire/payflow/form"
	"github.com/finwire/payflow/payments"
)

const (
	FlowBeneficiaryCreate = "beneficiary_create"
	FlowBeneficiaryUpdate = "beneficiary_update"
)

var (
	emailRe   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe   = regexp.MustCompile(`^\+?\d{7,15}$`)
	routingRe = regexp.MustCompile(`^\d{9}$`)
	swiftRe   = regexp.MustCompile(`^[A-Za-z]{6}[A-Za-z0-9]{2}([A-Za-z0-9]{3})?$`)
)

// validateRouting applies the US length rule: a routing number for a USA
// account must be exactly 9 digits. Other countries accept any non-empty
// value, "n/a" included.
func validateRouting(raw string, values form.Values) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if values["bankAccount.country"] == "usa" {
		if !routingRe.MatchString(trimmed) {
			return "", &form.ValidationError{Reason: "a US routing number is exactly 9 digits"}
		}
		return trimmed, nil
	}
	if trimmed == "" {
		return "", &form.ValidationError{Reason: "enter the routing number, or n/a if the bank has none"}
	}
	return trimmed, nil
}

func validateSwift(raw string, _ form.Values) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "n/a") {
		return "n/a", nil
	}
	if !swiftRe.MatchString(trimmed) {
		return "", &form.ValidationError{Reason: "a SWIFT/BIC code is 8 or 11 characters, or n/a"}
	}
	return strings.ToUpper(trimmed), nil
}

func beneficiaryFields() []form.FieldSpec {
	return []form.FieldSpec{
		{Key: "nickName", Label: "Nickname", Prompt: "What should we call this beneficiary? (a short nickname)", Validate: form.NonEmpty()},
		{Key: "firstName", Label: "First name", Prompt: "Beneficiary's first name?", Validate: form.NonEmpty()},
		{Key: "lastName", Label: "Last name", Prompt: "Beneficiary's last name?", Validate: form.NonEmpty()},
		{Key: "email", Label: "Email", Prompt: "Beneficiary's email address?", Validate: form.Match(emailRe, "that doesn't look like an email address")},
		{Key: "phoneNumber", Label: "Phone", Prompt: "Beneficiary's phone number? (digits, + prefix allowed)", Validate: form.Match(phoneRe, "enter 7 to 15 digits, + prefix allowed")},
		{Key: "bankAccount.country", Label: "Bank country", Prompt: "Bank country? (3-letter code, e.g. usa, gbr, mex)", Validate: form.Enum(countries...)},
		{Key: "bankAccount.bankName", Label: "Bank name", Prompt: "Name of the bank?", Validate: form.NonEmpty()},
		{Key: "bankAccount.accountType", Label: "Account type", Prompt: "Account type?", Mode: form.ModeChoice, Choices: accountTypes},
		{Key: "bankAccount.transferType", Label: "Transfer type", Prompt: "How should transfers be routed?", Mode: form.ModeChoice, Choices: transferTypes},
		{Key: "bankAccount.accountNumber", Label: "Account number", Prompt: "Account number (or IBAN)?", Validate: form.NonEmpty()},
		{Key: "bankAccount.routingNumber", Label: "Routing number", Prompt: "Routing number? (9 digits for USA, n/a otherwise if none)", DependsOn: "bankAccount.country", Validate: validateRouting},
		{Key: "bankAccount.beneficiaryName", Label: "Name on account", Prompt: "Name on the bank account?", Validate: form.NonEmpty()},
		{Key: "bankAccount.address", Label: "Bank address", Prompt: "Bank branch address?", Validate: form.NonEmpty()},
		{Key: "bankAccount.swiftCode", Label: "SWIFT code", Prompt: "SWIFT/BIC code? (or n/a)", Validate: validateSwift},
	}
}

func beneficiaryCreateSchema() *form.Schema {
	return form.MustSchema(FlowBeneficiaryCreate, beneficiaryFields()...)
}

func beneficiaryUpdateSchema() *form.Schema {
	fields := append([]form.FieldSpec{
		{Key: "beneficiaryId", Label: "Beneficiary ID", Prompt: "Which beneficiary? (the id from /help → list)", Validate: form.NonEmpty()},
	}, beneficiaryFields()...)
	return form.MustSchema(FlowBeneficiaryUpdate, fields...)
}

func beneficiaryRequest(values form.Values) payments.BeneficiaryRequest {
	swift := values["bankAccount.swiftCode"]
	if swift == "n/a" {
		swift = ""
	}
	routing := values["bankAccount.routingNumber"]
	if strings.EqualFold(routing, "n/a") {
		routing = ""
	}
	return payments.BeneficiaryRequest{
		NickName:    values["nickName"],
		FirstName:   values["firstName"],
		LastName:    values["lastName"],
		Email:       values["email"],
		PhoneNumber: values["phoneNumber"],
		BankAccount: payments.BankAccount{
			Country:         values["bankAccount.country"],
			BankName:        values["bankAccount.bankName"],
			AccountType:     values["bankAccount.accountType"],
			TransferType:    values["bankAccount.transferType"],
			AccountNumber:   values["bankAccount.accountNumber"],
			RoutingNumber:   routing,
			BeneficiaryName: values["bankAccount.beneficiaryName"],
			Address:         values["bankAccount.address"],
			SwiftCode:       swift,
		},
	}
}

func submitBeneficiaryCreate(api API) form.SubmitterFunc {
	return func(ctx context.Context, values form.Values) (form.Receipt, error) {
		receipt, err := api.CreateBeneficiary(ctx, beneficiaryRequest(values))
		if err != nil {
			return form.Receipt{}, wrapAPIError("create beneficiary", err)
		}
		return form.Receipt{ID: receipt.ID, Status: receipt.Status}, nil
	}
}

func submitBeneficiaryUpdate(api API) form.SubmitterFunc {
	return func(ctx context.Context, values form.Values) (form.Receipt, error) {
		id := values["beneficiaryId"]
		if id == "" {
			return form.Receipt{}, fmt.Errorf("flows: beneficiary update without id")
		}
		receipt, err := api.UpdateBeneficiary(ctx, id, beneficiaryRequest(values))
		if err != nil {
			return form.Receipt{}, wrapAPIError("update beneficiary", err)
		}
		return form.Receipt{ID: receipt.ID, Status: receipt.Status}, nil
	}
}
