package submitloanapplication

type Input struct {
	ApplicantName   string `json:"applicantName"`
	ApplicantEmail  string `json:"applicantEmail"`
	ApplicantPhone  string `json:"applicantPhone"`
	EmailOptOut     bool   `json:"emailOptOut"`
	SMSOptOut       bool   `json:"smsOptOut"`
	TaxID           string `json:"taxId"`
	BirthDate       string `json:"birthDate"`
	LoanType        string `json:"loanType"`
	RequestedAmount int64  `json:"requestedAmount"` // cents
	TermDays        int    `json:"termDays"`

	DeviceFingerprint  string `json:"deviceFingerprint"`
	IPAddress          string `json:"ipAddress"`
	IPCountry          string `json:"ipCountry"`
	DeclaredCountry    string `json:"declaredCountry"`
	AnonymizingNetwork bool   `json:"anonymizingNetwork"`
}

type Output struct {
	ApplicationID     int64  `json:"applicationId"`
	TrackingNumber    string `json:"trackingNumber"`
	ApplicationStatus string `json:"applicationStatus"`
	RiskScore         int    `json:"riskScore"`
	RiskBand          string `json:"riskBand"`
	FraudCheckID      int64  `json:"fraudCheckId,omitempty"`
}
