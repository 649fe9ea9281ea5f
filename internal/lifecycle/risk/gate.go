package risk

import (
	"fmt"

	"loan-lifecycle/internal/models"
)

// Proposal is the rule engine's output as seen by the gate.
type Proposal struct {
	RuleID   int64
	RuleName string
	Action   models.Action
}

type Decision struct {
	// Target is empty when the application should stay where it is.
	Target     models.Status
	Note       string
	Suppressed bool
}

// Gate applies to automatic decisions only. Manual admin transitions bypass it.
//
//   - high band: always under_review, any state-changing action is suppressed
//   - medium band: auto-reject is suppressed in favour of under_review
//   - low band: the proposal applies as is
//
// ticket-routing never changes state.
func Gate(band Band, p *Proposal) Decision {
	var target models.Status
	if p != nil {
		target = TargetOf(p.Action)
	}

	switch {
	case band == BandHigh && target != "":
		return suppressed(band, p)
	case band == BandHigh:
		return Decision{Target: models.StatusUnderReview, Note: fmt.Sprintf("risk gate: band %s, held for manual review", band)}
	case band == BandMedium && p != nil && p.Action.Kind == models.ActionAutoReject:
		return suppressed(band, p)
	case target != "":
		return Decision{Target: target, Note: fmt.Sprintf("rule %d (%s): %s", p.RuleID, p.RuleName, p.Action.Kind)}
	default:
		return Decision{}
	}
}

func suppressed(band Band, p *Proposal) Decision {
	return Decision{
		Target:     models.StatusUnderReview,
		Suppressed: true,
		Note:       fmt.Sprintf("risk gate: suppressed %s from rule %d (%s), band %s", p.Action.Kind, p.RuleID, p.RuleName, band),
	}
}

// TargetOf maps a state-changing action to its target status.
func TargetOf(a models.Action) models.Status {
	switch a.Kind {
	case models.ActionAutoApprove:
		return models.StatusApproved
	case models.ActionAutoReject:
		return models.StatusRejected
	case models.ActionStatusTransition:
		return a.TargetStatus
	default:
		return ""
	}
}
