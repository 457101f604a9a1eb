// Package flows declares the conversational flows of the bot: each flow is a
// field schema plus a submitter that maps collected values onto a payments
// API call.
package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/finwire/payflow/form"
	"github.com/finwire/payflow/payments"
)

// API is the slice of the payments client the flows need.
type API interface {
	CreateBeneficiary(ctx context.Context, req payments.BeneficiaryRequest) (payments.Receipt, error)
	UpdateBeneficiary(ctx context.Context, id string, req payments.BeneficiaryRequest) (payments.Receipt, error)
	WalletTransfer(ctx context.Context, req payments.WalletTransferRequest) (payments.Receipt, error)
	EmailTransfer(ctx context.Context, req payments.EmailTransferRequest) (payments.Receipt, error)
	OfframpTransfer(ctx context.Context, req payments.OfframpTransferRequest) (payments.Receipt, error)
	InitiateDeposit(ctx context.Context, req payments.DepositRequest) (payments.Receipt, error)
}

// RegisterAll wires every flow into the engine. Called once at startup.
func RegisterAll(engine *form.Engine, api API) error {
	all := []form.Flow{
		{Schema: beneficiaryCreateSchema(), Submit: submitBeneficiaryCreate(api), Title: "New beneficiary"},
		{Schema: beneficiaryUpdateSchema(), Submit: submitBeneficiaryUpdate(api), Title: "Update beneficiary"},
		{Schema: walletTransferSchema(), Submit: submitWalletTransfer(api), Title: "Wallet transfer"},
		{Schema: emailTransferSchema(), Submit: submitEmailTransfer(api), Title: "Email transfer"},
		{Schema: offrampTransferSchema(), Submit: submitOfframpTransfer(api), Title: "Bank payout"},
		{Schema: depositSchema(), Submit: submitDeposit(api), Title: "Deposit"},
	}
	for _, f := range all {
		if err := engine.Register(f); err != nil {
			return fmt.Errorf("flows: register %s: %w", f.Schema.FlowID(), err)
		}
	}
	return nil
}

// wrapAPIError converts a payments API failure into a SubmissionError so the
// engine can surface the server's explanation to the user.
func wrapAPIError(op string, err error) error {
	var apiErr *payments.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &form.SubmissionError{Message: apiErr.Message, Err: err}
	}
	return &form.SubmissionError{Err: fmt.Errorf("%s: %w", op, err)}
}
