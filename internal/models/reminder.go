package models

import "time"

type ReminderType string

const (
	ReminderDue7       ReminderType = "due-7"
	ReminderDue3       ReminderType = "due-3"
	ReminderDue1       ReminderType = "due-1"
	ReminderOverdue    ReminderType = "overdue"
	ReminderDelinquent ReminderType = "delinquent"
)

// DueReminderTypes maps days-until-due to the reminder sent on that day.
var DueReminderTypes = map[int]ReminderType{
	7: ReminderDue7,
	3: ReminderDue3,
	1: ReminderDue1,
}

// ReminderLog rows are append-only. (ApplicationID, Type, DueCycle) is unique
// among non-test rows.
type ReminderLog struct {
	ID            string       `json:"id"`
	ApplicationID int64        `json:"applicationId"`
	Type          ReminderType `json:"reminderType"`
	DueCycle      string       `json:"dueCycle"`
	DaysUntilDue  int          `json:"daysUntilDue"`
	IsTest        bool         `json:"isTest"`
	Delivered     bool         `json:"delivered"`
	SentAt        time.Time    `json:"sentAt"`
}
