package rules

import (
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/models"
)

type fieldKind int

const (
	kindNumber fieldKind = iota
	kindString
	kindEnum
)

type field struct {
	name    string
	kind    fieldKind
	allowed []string
	number  func(*models.LoanApplication) int64
	text    func(*models.LoanApplication) string
}

var operatorsByKind = map[fieldKind][]models.Operator{
	kindNumber: {models.OpEq, models.OpNeq, models.OpGt, models.OpGte, models.OpLt, models.OpLte},
	kindString: {models.OpEq, models.OpNeq, models.OpContains},
	kindEnum:   {models.OpEq, models.OpNeq},
}

func statusNames() []string {
	out := make([]string, len(models.AllStatuses))
	for i, s := range models.AllStatuses {
		out[i] = string(s)
	}
	return out
}

var registry = map[string]field{
	"requestedAmount": {
		name: "requestedAmount", kind: kindNumber,
		number: func(a *models.LoanApplication) int64 { return a.RequestedAmount },
	},
	"approvedAmount": {
		name: "approvedAmount", kind: kindNumber,
		number: func(a *models.LoanApplication) int64 { return a.ApprovedAmount },
	},
	"termDays": {
		name: "termDays", kind: kindNumber,
		number: func(a *models.LoanApplication) int64 { return int64(a.TermDays) },
	},
	"riskScore": {
		name: "riskScore", kind: kindNumber,
		number: func(a *models.LoanApplication) int64 { return int64(a.RiskScore) },
	},
	"riskBand": {
		name: "riskBand", kind: kindEnum,
		allowed: []string{string(risk.BandLow), string(risk.BandMedium), string(risk.BandHigh)},
		text:    func(a *models.LoanApplication) string { return string(risk.BandFor(a.RiskScore)) },
	},
	"loanType": {
		name: "loanType", kind: kindEnum,
		allowed: models.LoanTypes,
		text:    func(a *models.LoanApplication) string { return a.LoanType },
	},
	"status": {
		name: "status", kind: kindEnum,
		allowed: statusNames(),
		text:    func(a *models.LoanApplication) string { return string(a.Status) },
	},
	"applicantName": {
		name: "applicantName", kind: kindString,
		text: func(a *models.LoanApplication) string { return a.Applicant.Name },
	},
	"applicantEmail": {
		name: "applicantEmail", kind: kindString,
		text: func(a *models.LoanApplication) string { return a.Applicant.Email },
	},
}

// Fields lists the condition fields rules may reference.
func Fields() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}
