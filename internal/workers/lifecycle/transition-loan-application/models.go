package transitionloanapplication

type Input struct {
	ApplicationID  int64  `json:"applicationId"`
	TargetState    string `json:"targetState"`
	Actor          string `json:"actor"`
	Note           string `json:"note"`
	ApprovedAmount int64  `json:"approvedAmount"`
}

type Output struct {
	ApplicationID     int64  `json:"applicationId"`
	PreviousStatus    string `json:"previousStatus"`
	ApplicationStatus string `json:"applicationStatus"`
	Changed           bool   `json:"changed"`
}
