package flows

import (
	"context"

	"github.com/finwire/payflow/form"
	"github.com/finwire/payflow/payments"
)

const (
	FlowWalletTransfer  = "wallet_transfer"
	FlowEmailTransfer   = "email_transfer"
	FlowOfframpTransfer = "offramp_transfer"
)

func walletTransferSchema() *form.Schema {
	return form.MustSchema(FlowWalletTransfer,
		form.FieldSpec{Key: "beneficiaryId", Label: "Beneficiary", Prompt: "Which beneficiary should receive the transfer? (beneficiary id)", Validate: form.NonEmpty()},
		form.FieldSpec{Key: "amount", Label: "Amount", Prompt: "How much would you like to send?", Validate: form.Amount()},
		form.FieldSpec{Key: "purposeCode", Label: "Purpose", Prompt: "What is this transfer for?", Mode: form.ModeChoice, Choices: purposeCodes},
		form.FieldSpec{Key: "description", Label: "Description", Prompt: "Add a short description for the recipient.", Validate: form.NonEmpty()},
	)
}

func emailTransferSchema() *form.Schema {
	return form.MustSchema(FlowEmailTransfer,
		form.FieldSpec{Key: "recipientEmail", Label: "Recipient email", Prompt: "Recipient's email address?", Validate: form.Match(emailRe, "that doesn't look like an email address")},
		form.FieldSpec{Key: "amount", Label: "Amount", Prompt: "How much would you like to send?", Validate: form.Amount()},
		form.FieldSpec{Key: "purposeCode", Label: "Purpose", Prompt: "What is this transfer for?", Mode: form.ModeChoice, Choices: purposeCodes},
		form.FieldSpec{Key: "note", Label: "Note", Prompt: "Add a note for the recipient.", Validate: form.NonEmpty()},
	)
}

func offrampTransferSchema() *form.Schema {
	return form.MustSchema(FlowOfframpTransfer,
		form.FieldSpec{Key: "beneficiaryId", Label: "Beneficiary", Prompt: "Which beneficiary should be paid out? (beneficiary id)", Validate: form.NonEmpty()},
		form.FieldSpec{Key: "amount", Label: "Amount", Prompt: "How much would you like to pay out?", Validate: form.Amount()},
		form.FieldSpec{Key: "currency", Label: "Currency", Prompt: "Which currency?", Mode: form.ModeChoice, Choices: currencies},
		form.FieldSpec{Key: "sourceOfFunds", Label: "Source of funds", Prompt: "Where do these funds come from?", Mode: form.ModeChoice, Choices: sourcesOfFunds},
		form.FieldSpec{Key: "purposeCode", Label: "Purpose", Prompt: "What is this payout for?", Mode: form.ModeChoice, Choices: purposeCodes},
	)
}

func submitWalletTransfer(api API) form.SubmitterFunc {
	return func(ctx context.Context, values form.Values) (form.Receipt, error) {
		receipt, err := api.WalletTransfer(ctx, payments.WalletTransferRequest{
			BeneficiaryID: values["beneficiaryId"],
			Amount:        values["amount"],
			PurposeCode:   values["purposeCode"],
			Description:   values["description"],
		})
		if err != nil {
			return form.Receipt{}, wrapAPIError("wallet transfer", err)
		}
		return form.Receipt{ID: receipt.ID, Status: receipt.Status}, nil
	}
}

func submitEmailTransfer(api API) form.SubmitterFunc {
	return func(ctx context.Context, values form.Values) (form.Receipt, error) {
		receipt, err := api.EmailTransfer(ctx, payments.EmailTransferRequest{
			RecipientEmail: values["recipientEmail"],
			Amount:         values["amount"],
			PurposeCode:    values["purposeCode"],
			Note:           values["note"],
		})
		if err != nil {
			return form.Receipt{}, wrapAPIError("email transfer", err)
		}
		return form.Receipt{ID: receipt.ID, Status: receipt.Status}, nil
	}
}

func submitOfframpTransfer(api API) form.SubmitterFunc {
	return func(ctx context.Context, values form.Values) (form.Receipt, error) {
		receipt, err := api.OfframpTransfer(ctx, payments.OfframpTransferRequest{
			BeneficiaryID: values["beneficiaryId"],
			Amount:        values["amount"],
			Currency:      values["currency"],
			SourceOfFunds: values["sourceOfFunds"],
			PurposeCode:   values["purposeCode"],
		})
		if err != nil {
			return form.Receipt{}, wrapAPIError("offramp transfer", err)
		}
		return form.Receipt{ID: receipt.ID, Status: receipt.Status}, nil
	}
}
