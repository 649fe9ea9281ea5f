package models

import "time"

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusFeePending  Status = "fee_pending"
	StatusFeePaid     Status = "fee_paid"
	StatusDisbursed   Status = "disbursed"
	StatusCurrent     Status = "current"
	StatusOverdue     Status = "overdue"
	StatusDelinquent  Status = "delinquent"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

var AllStatuses = []Status{
	StatusPending,
	StatusUnderReview,
	StatusApproved,
	StatusFeePending,
	StatusFeePaid,
	StatusDisbursed,
	StatusCurrent,
	StatusOverdue,
	StatusDelinquent,
	StatusCompleted,
	StatusRejected,
	StatusCancelled,
}

// ActiveStatuses block a new application for the same identity.
var ActiveStatuses = []Status{
	StatusPending,
	StatusUnderReview,
	StatusApproved,
	StatusFeePending,
	StatusFeePaid,
	StatusDisbursed,
}

// RepaymentStatuses are scanned by the reminder scheduler.
var RepaymentStatuses = []Status{
	StatusDisbursed,
	StatusCurrent,
	StatusOverdue,
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

func (s Status) IsActive() bool {
	return containsStatus(ActiveStatuses, s)
}

func (s Status) IsRepaymentBearing() bool {
	return containsStatus(RepaymentStatuses, s)
}

func containsStatus(list []Status, s Status) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}

const (
	ActorRuleEngine     = "rule-engine"
	ActorScheduler      = "scheduler"
	ActorPaymentWebhook = "payment-webhook"
	ActorSystem         = "system"
)

const (
	LoanTypePersonal  = "personal"
	LoanTypeBusiness  = "business"
	LoanTypeAuto      = "auto"
	LoanTypeEducation = "education"
)

var LoanTypes = []string{LoanTypePersonal, LoanTypeBusiness, LoanTypeAuto, LoanTypeEducation}

type Applicant struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	EmailOptOut bool   `json:"emailOptOut"`
	SMSOptOut   bool   `json:"smsOptOut"`
}

// LoanApplication amounts are in minor currency units (cents).
type LoanApplication struct {
	ID                  int64        `json:"id"`
	TrackingNumber      string       `json:"trackingNumber"`
	IdentityKey         string       `json:"-"`
	Status              Status       `json:"status"`
	Applicant           Applicant    `json:"applicant"`
	LoanType            string       `json:"loanType"`
	RequestedAmount     int64        `json:"requestedAmount"`
	ApprovedAmount      int64        `json:"approvedAmount,omitempty"`
	ProcessingFeeAmount int64        `json:"processingFeeAmount,omitempty"`
	TermDays            int          `json:"termDays"`
	DueDate             *time.Time   `json:"dueDate,omitempty"`
	RiskScore           int          `json:"riskScore"`
	RiskReviewStatus    ReviewStatus `json:"riskReviewStatus,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
	ApprovedAt          *time.Time   `json:"approvedAt,omitempty"`
	FeePaidAt           *time.Time   `json:"feePaidAt,omitempty"`
	DisbursedAt         *time.Time   `json:"disbursedAt,omitempty"`
	ClosedAt            *time.Time   `json:"closedAt,omitempty"`
	LastReminderSentAt  *time.Time   `json:"lastReminderSentAt,omitempty"`
}

type AuditEntry struct {
	ID            string    `json:"id"`
	ApplicationID int64     `json:"applicationId"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	Actor         string    `json:"actor"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
