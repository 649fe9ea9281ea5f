package evaluateloanapplication

type Input struct {
	ApplicationID int64 `json:"applicationId"`
}

type Output struct {
	ApplicationID     int64  `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	RiskBand          string `json:"riskBand"`
	MatchedRuleID     int64  `json:"matchedRuleId,omitempty"`
	RuleAction        string `json:"ruleAction,omitempty"`
	DecisionApplied   bool   `json:"decisionApplied"`
	GateSuppressed    bool   `json:"gateSuppressed"`
}
