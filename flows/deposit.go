package flows

import (
	"context"

	"github.com/finwire/payflow/form"
	"github.com/finwire/payflow/payments"
)

const FlowDeposit = "deposit_initiate"

func depositSchema() *form.Schema {
	return form.MustSchema(FlowDeposit,
		form.FieldSpec{Key: "amount", Label: "Amount", Prompt: "How much would you like to deposit?", Validate: form.Amount()},
		form.FieldSpec{Key: "currency", Label: "Currency", Prompt: "Which currency?", Mode: form.ModeChoice, Choices: currencies},
		form.FieldSpec{Key: "fundingSource", Label: "Funding source", Prompt: "How will you fund the deposit?", Mode: form.ModeChoice, Choices: fundingSources},
	)
}

func submitDeposit(api API) form.SubmitterFunc {
	return func(ctx context.Context, values form.Values) (form.Receipt, error) {
		receipt, err := api.InitiateDeposit(ctx, payments.DepositRequest{
			Amount:        values["amount"],
			Currency:      values["currency"],
			FundingSource: values["fundingSource"],
		})
		if err != nil {
			return form.Receipt{}, wrapAPIError("deposit", err)
		}
		return form.Receipt{ID: receipt.ID, Status: receipt.Status}, nil
	}
}
