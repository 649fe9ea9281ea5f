package confirmfeepayment

type Input struct {
	ApplicationID int64  `json:"applicationId"`
	Outcome       string `json:"outcome"` // fee_paid | fee_failed
	Reference     string `json:"paymentReference"`
	Reason        string `json:"failureReason"`
}

type Output struct {
	ApplicationID     int64  `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	FeePaid           bool   `json:"feePaid"`
	BorrowerNotified  bool   `json:"borrowerNotified"`
}
