package runremindercheck

// Input carries nothing; the scan covers every loan in repayment.
type Input struct{}

type Output struct {
	LoansScanned         int  `json:"loansScanned"`
	RemindersSent        int  `json:"remindersSent"`
	RemindersUndelivered int  `json:"remindersUndelivered"`
	LoansFailed          int  `json:"loansFailed"`
	Skipped              bool `json:"skipped"`
}
