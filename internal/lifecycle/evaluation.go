package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/models"
)

type EvaluationResult struct {
	ApplicationID int64         `json:"applicationId"`
	Status        models.Status `json:"status"`
	RiskBand      risk.Band     `json:"riskBand"`
	RuleID        int64         `json:"ruleId,omitempty"`
	Action        string        `json:"action,omitempty"`
	Applied       bool          `json:"applied"`
	Suppressed    bool          `json:"suppressed"`
	Note          string        `json:"note,omitempty"`
}

// EvaluateApplication re-runs the automatic decision for an application
// still in pending. Any other status is reported back unchanged.
func (e *Engine) EvaluateApplication(ctx context.Context, id int64) (*EvaluationResult, error) {
	app, err := e.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusPending {
		return &EvaluationResult{
			ApplicationID: app.ID,
			Status:        app.Status,
			RiskBand:      risk.BandFor(app.RiskScore),
			Note:          fmt.Sprintf("application is %s, nothing to evaluate", app.Status),
		}, nil
	}
	return e.decide(ctx, app)
}

// decide runs the rule engine, passes the proposal through the risk gate and
// applies the result as a rule-engine transition.
func (e *Engine) decide(ctx context.Context, app *models.LoanApplication) (*EvaluationResult, error) {
	ctx, span := e.obs.StartSpan(ctx, "lifecycle.evaluate")
	defer span.End()

	band := risk.BandFor(app.RiskScore)
	out := &EvaluationResult{ApplicationID: app.ID, Status: app.Status, RiskBand: band}

	match, err := e.rules.Evaluate(ctx, app)
	if err != nil {
		return nil, err
	}

	var proposal *risk.Proposal
	if match != nil {
		out.RuleID = match.RuleID
		out.Action = string(match.Action.Kind)
		proposal = &risk.Proposal{RuleID: match.RuleID, RuleName: match.RuleName, Action: match.Action}

		if match.Action.Kind == models.ActionTicketRouting {
			e.log.Info("support ticket routed", map[string]interface{}{
				"applicationId": app.ID,
				"ruleId":        match.RuleID,
				"queue":         match.Action.Queue,
			})
		}
	}

	decision := risk.Gate(band, proposal)
	out.Suppressed = decision.Suppressed
	out.Note = decision.Note
	if decision.Suppressed {
		metrics.GateSuppressions.WithLabelValues(out.Action, string(band)).Inc()
		e.log.Warn("automatic action suppressed by risk gate", map[string]interface{}{
			"applicationId": app.ID,
			"ruleId":        match.RuleID,
			"action":        match.Action.Kind,
			"band":          band,
		})
	}
	if decision.Target == "" {
		return out, nil
	}

	res, err := e.commit(ctx, statemachine.Request{
		ApplicationID: app.ID,
		To:            decision.Target,
		Actor:         models.ActorRuleEngine,
		Note:          decision.Note,
		ExpectFrom:    []models.Status{models.StatusPending},
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidTransition) {
			// The rule target is not reachable from the current state,
			// either by the rule's design or because an admin moved the
			// application first. It is left where it is.
			e.log.Warn("rule target not reachable", map[string]interface{}{
				"applicationId": app.ID,
				"ruleId":        out.RuleID,
				"target":        decision.Target,
			})
			return out, nil
		}
		return nil, err
	}

	out.Status = res.Application.Status
	out.Applied = res.Changed
	return out, nil
}
