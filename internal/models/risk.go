package models

import "time"

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

const (
	CheckTypeSubmission = "submission"
	CheckTypePayment    = "payment"
)

type RiskAssessment struct {
	ID            int64        `json:"id"`
	ApplicationID int64        `json:"applicationId"`
	UserRef       string       `json:"userRef"`
	CheckType     string       `json:"checkType"`
	RiskScore     int          `json:"riskScore"`
	FraudSignals  []string     `json:"fraudSignals"`
	ReviewStatus  ReviewStatus `json:"reviewStatus"`
	ReviewedBy    string       `json:"reviewedBy,omitempty"`
	ReviewNotes   string       `json:"reviewNotes,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewedAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}
