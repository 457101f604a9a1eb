package flows

import "github.com/finwire/payflow/form"

// Supported beneficiary bank countries, ISO 3166-1 alpha-3, lower-case.
var countries = []string{
	"usa", "can", "gbr", "mex", "ind", "phl", "nga", "bra", "deu", "fra",
}

// Settlement currencies offered for off-ramp and deposit flows.
var currencies = []form.Choice{
	{Key: "usd", Label: "USD"},
	{Key: "eur", Label: "EUR"},
	{Key: "gbp", Label: "GBP"},
	{Key: "cad", Label: "CAD"},
	{Key: "mxn", Label: "MXN"},
}

var purposeCodes = []form.Choice{
	{Key: "family_support", Label: "Family support"},
	{Key: "gift", Label: "Gift"},
	{Key: "salary", Label: "Salary"},
	{Key: "invoice_payment", Label: "Invoice payment"},
	{Key: "investment", Label: "Investment"},
}

var accountTypes = []form.Choice{
	{Key: "savings", Label: "Savings"},
	{Key: "checking", Label: "Checking"},
}

var transferTypes = []form.Choice{
	{Key: "bank_wire", Label: "Bank wire"},
	{Key: "ach", Label: "ACH"},
	{Key: "sepa", Label: "SEPA"},
}

var sourcesOfFunds = []form.Choice{
	{Key: "salary", Label: "Salary"},
	{Key: "savings", Label: "Savings"},
	{Key: "business_income", Label: "Business income"},
	{Key: "investment_proceeds", Label: "Investment proceeds"},
}

var fundingSources = []form.Choice{
	{Key: "bank_transfer", Label: "Bank transfer"},
	{Key: "debit_card", Label: "Debit card"},
	{Key: "wallet_balance", Label: "Wallet balance"},
}
