// Package api is the admin HTTP surface of the lifecycle engine.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/lifecycle/fees"
	"loan-lifecycle/internal/lifecycle/identity"
	"loan-lifecycle/internal/lifecycle/notifier"
	"loan-lifecycle/internal/lifecycle/rules"
	"loan-lifecycle/internal/lifecycle/scheduler"
	"loan-lifecycle/internal/lifecycle/search"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/models"
)

const defaultAdminActor = "admin"

// Service is the subset of lifecycle.Engine the API calls.
type Service interface {
	CheckDuplicate(ctx context.Context, taxID, birthDate string) (*identity.DuplicateCheck, error)
	SubmitApplication(ctx context.Context, req lifecycle.SubmitRequest) (*lifecycle.SubmitResult, error)
	EvaluateApplication(ctx context.Context, id int64) (*lifecycle.EvaluationResult, error)
	Transition(ctx context.Context, req lifecycle.TransitionRequest) (*statemachine.Result, error)
	GetApplication(ctx context.Context, id int64) (*models.LoanApplication, error)
	GetApplicationByTrackingNumber(ctx context.Context, trackingNumber string) (*models.LoanApplication, error)
	History(ctx context.Context, id int64) ([]models.AuditEntry, error)
	SearchApplications(ctx context.Context, q search.Query) (*search.Result, error)
	ReviewFraudCheck(ctx context.Context, checkID int64, approved bool, reviewer, notes string) (*models.RiskAssessment, error)
	ListPendingFraudReviews(ctx context.Context) ([]models.RiskAssessment, error)
	CreateRule(ctx context.Context, rule models.AutomationRule) (*models.AutomationRule, error)
	UpdateRule(ctx context.Context, id int64, rule models.AutomationRule) (*models.AutomationRule, error)
	DeleteRule(ctx context.Context, id int64) error
	GetRule(ctx context.Context, id int64) (*models.AutomationRule, error)
	ListRules(ctx context.Context) ([]models.AutomationRule, error)
	RunReminderCheck(ctx context.Context) (*scheduler.Result, error)
	SendTestReminder(ctx context.Context, applicationID int64) (*models.ReminderLog, notifier.Result, error)
	HandlePaymentEvent(ctx context.Context, ev lifecycle.PaymentEvent) (*lifecycle.PaymentResult, error)
	FeeQuote(amount int64) (fees.Quote, error)
}

// CheckFunc is a readiness probe for one dependency.
type CheckFunc func(ctx context.Context) error

type Handler struct {
	service      Service
	checks       map[string]CheckFunc
	readyTimeout time.Duration
	log          logger.Logger
}

func NewHandler(service Service, checks map[string]CheckFunc, log logger.Logger) *Handler {
	return &Handler{
		service:      service,
		checks:       checks,
		readyTimeout: 3 * time.Second,
		log:          log.With(map[string]interface{}{"component": "api"}),
	}
}

// Routes builds the router. Operational endpoints sit at the root, the
// admin API under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.submitApplication)
			r.Get("/", h.searchApplications)
			r.Post("/check-duplicate", h.checkDuplicate)
			r.Get("/tracking/{trackingNumber}", h.getByTrackingNumber)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getApplication)
				r.Get("/history", h.history)
				r.Post("/transitions", h.transition)
				r.Post("/evaluate", h.evaluate)
				r.Post("/test-reminder", h.sendTestReminder)
			})
		})

		r.Get("/fraud-reviews", h.listFraudReviews)
		r.Post("/fraud-reviews/{checkId}", h.reviewFraudCheck)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
			r.Get("/{id}", h.getRule)
			r.Put("/{id}", h.updateRule)
			r.Delete("/{id}", h.deleteRule)
		})

		r.Post("/reminders/run", h.runReminderCheck)
		r.Post("/payments/events", h.paymentEvent)
		r.Get("/fees/quote", h.feeQuote)
	})
	return r
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		h.log.Debug("request served", map[string]interface{}{
			"method":     r.Method,
			"route":      route,
			"status":     ww.Status(),
			"requestId":  middleware.GetReqID(r.Context()),
			"durationMs": time.Since(start).Milliseconds(),
		})
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ready pings every dependency concurrently and reports each result.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	errs := make([]error, 0, len(h.checks))
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	outcomes := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		i, check := i, h.checks[name]
		g.Go(func() error {
			outcomes[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for i, name := range names {
		if outcomes[i] != nil {
			results[name] = outcomes[i].Error()
			errs = append(errs, outcomes[i])
			continue
		}
		results[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if len(errs) > 0 {
		status, code = "not_ready", http.StatusServiceUnavailable
		h.log.Warn("readiness check failed", map[string]interface{}{"checks": results})
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": results})
}

func (h *Handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.service.SubmitApplication(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type duplicateCheckRequest struct {
	TaxID     string `json:"taxId"`
	BirthDate string `json:"birthDate"`
}

func (h *Handler) checkDuplicate(w http.ResponseWriter, r *http.Request) {
	var req duplicateCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.service.CheckDuplicate(r.Context(), req.TaxID, req.BirthDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) searchApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := search.Query{Text: q.Get("q"), LoanType: q.Get("loanType")}
	if s := q.Get("status"); s != "" {
		query.Statuses = strings.Split(s, ",")
	}
	query.From, _ = strconv.Atoi(q.Get("from"))
	query.Size, _ = strconv.Atoi(q.Get("size"))

	res, err := h.service.SearchApplications(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	app, err := h.service.GetApplication(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) getByTrackingNumber(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.GetApplicationByTrackingNumber(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applicationId": id, "history": entries})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req lifecycle.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.ApplicationID = id
	if strings.TrimSpace(req.Actor) == "" {
		req.Actor = defaultAdminActor
	}
	res, err := h.service.Transition(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"application": res.Application,
		"from":        res.From,
		"changed":     res.Changed,
	})
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.service.EvaluateApplication(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) sendTestReminder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	log, result, err := h.service.SendTestReminder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reminder": log, "notification": result})
}

func (h *Handler) listFraudReviews(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPendingFraudReviews(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []models.RiskAssessment{}
	}
	writeJSON(w, http.StatusOK, pending)
}

type fraudReviewRequest struct {
	Approved   bool   `json:"approved"`
	ReviewedBy string `json:"reviewedBy"`
	Notes      string `json:"notes"`
}

func (h *Handler) reviewFraudCheck(w http.ResponseWriter, r *http.Request) {
	checkID, err := parseID(chi.URLParam(r, "checkId"), "checkId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req fraudReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ra, err := h.service.ReviewFraudCheck(r.Context(), checkID, req.Approved, req.ReviewedBy, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRules(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.AutomationRule{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.service.CreateRule(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// decodeRule accepts the rule document form, where condition values may be
// JSON numbers or booleans as well as strings.
func decodeRule(r *http.Request) (models.AutomationRule, error) {
	body, err := readBody(r)
	if err != nil {
		return models.AutomationRule{}, err
	}
	return rules.ParseDocument(body)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rule, err := h.service.GetRule(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rule, err := decodeRule(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.service.UpdateRule(r.Context(), id, rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runReminderCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RunReminderCheck(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) paymentEvent(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := lifecycle.ParsePaymentEvent(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.service.HandlePaymentEvent(r.Context(), *ev)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) feeQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		h.writeError(w, r, errors.NewValidationError([]errors.FieldError{{
			Field: "amount", Code: "INVALID_FORMAT", Message: "amount must be an integer in minor units",
		}}))
		return
	}
	q, err := h.service.FeeQuote(amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
