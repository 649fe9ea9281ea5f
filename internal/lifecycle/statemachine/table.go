// Package statemachine owns every write to LoanApplication.Status.
package statemachine

import "loan-lifecycle/internal/models"

var transitions = map[models.Status][]models.Status{
	models.StatusPending:     {models.StatusUnderReview, models.StatusApproved, models.StatusRejected, models.StatusCancelled},
	models.StatusUnderReview: {models.StatusApproved, models.StatusRejected, models.StatusCancelled},
	models.StatusApproved:    {models.StatusFeePending, models.StatusCancelled},
	models.StatusFeePending:  {models.StatusFeePaid, models.StatusCancelled},
	models.StatusFeePaid:     {models.StatusDisbursed},
	models.StatusDisbursed:   {models.StatusCurrent},
	models.StatusCurrent:     {models.StatusOverdue, models.StatusCompleted},
	models.StatusOverdue:     {models.StatusCurrent, models.StatusDelinquent, models.StatusCompleted},
	models.StatusDelinquent:  {models.StatusCompleted},
}

func CanTransition(from, to models.Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Targets returns the legal next states of from. Terminal states have none.
func Targets(from models.Status) []models.Status {
	return append([]models.Status(nil), transitions[from]...)
}

// HasIncomingEdge reports whether any state can move to s.
func HasIncomingEdge(s models.Status) bool {
	for from := range transitions {
		if CanTransition(from, s) {
			return true
		}
	}
	return false
}
