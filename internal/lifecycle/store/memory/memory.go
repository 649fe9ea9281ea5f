package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

// Applications is an in-process ApplicationStore.
type Applications struct {
	mu      sync.Mutex
	nextID  int64
	apps    map[int64]models.LoanApplication
	audit   map[int64][]models.AuditEntry
	rowLock map[int64]*sync.Mutex
}

func NewApplications() *Applications {
	return &Applications{
		apps:    make(map[int64]models.LoanApplication),
		audit:   make(map[int64][]models.AuditEntry),
		rowLock: make(map[int64]*sync.Mutex),
	}
}

func (s *Applications) Create(_ context.Context, app *models.LoanApplication, audit *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.Status.IsActive() {
		for _, existing := range s.apps {
			if existing.IdentityKey == app.IdentityKey && existing.Status.IsActive() {
				return store.ErrDuplicateIdentity
			}
		}
	}

	s.nextID++
	app.ID = s.nextID
	s.apps[app.ID] = *app
	s.rowLock[app.ID] = &sync.Mutex{}
	if audit != nil {
		entry := *audit
		entry.ApplicationID = app.ID
		s.audit[app.ID] = append(s.audit[app.ID], entry)
	}
	return nil
}

func (s *Applications) Get(_ context.Context, id int64) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &app, nil
}

func (s *Applications) GetByTrackingNumber(_ context.Context, trackingNumber string) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, app := range s.apps {
		if app.TrackingNumber == trackingNumber {
			found := app
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Applications) FindByIdentity(_ context.Context, identityKey string) ([]models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LoanApplication
	for _, app := range s.apps {
		if app.IdentityKey == identityKey {
			out = append(out, app)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Applications) Update(_ context.Context, id int64, fn store.Mutation) (*models.LoanApplication, error) {
	s.mu.Lock()
	lock, ok := s.rowLock[id]
	s.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	snapshot := s.apps[id]
	s.mu.Unlock()

	working := snapshot
	audit, err := fn(&working)
	if errors.Is(err, store.ErrNoChange) {
		return &snapshot, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[id] = working
	if audit != nil {
		entry := *audit
		entry.ApplicationID = id
		s.audit[id] = append(s.audit[id], entry)
	}
	return &working, nil
}

func (s *Applications) ListByStatus(_ context.Context, statuses []models.Status) ([]models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[models.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.LoanApplication
	for _, app := range s.apps {
		if want[app.Status] {
			out = append(out, app)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Applications) History(_ context.Context, id int64) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[id]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]models.AuditEntry, len(s.audit[id]))
	copy(out, s.audit[id])
	return out, nil
}

func sortByID(apps []models.LoanApplication) {
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
}

// Risk is an in-process RiskStore.
type Risk struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]models.RiskAssessment
}

func NewRisk() *Risk {
	return &Risk{items: make(map[int64]models.RiskAssessment)}
}

func (s *Risk) Create(_ context.Context, a *models.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	a.ID = s.nextID
	stored := *a
	stored.FraudSignals = append([]string(nil), a.FraudSignals...)
	s.items[a.ID] = stored
	return nil
}

func (s *Risk) Get(_ context.Context, id int64) (*models.RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Risk) Review(_ context.Context, id int64, status models.ReviewStatus, reviewer, notes string, at time.Time) (*models.RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if a.ReviewStatus != models.ReviewPending {
		return nil, store.ErrAlreadyReviewed
	}
	a.ReviewStatus = status
	a.ReviewedBy = reviewer
	a.ReviewNotes = notes
	a.ReviewedAt = &at
	s.items[id] = a
	return &a, nil
}

func (s *Risk) ListPending(_ context.Context) ([]models.RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RiskAssessment
	for _, a := range s.items {
		if a.ReviewStatus == models.ReviewPending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Rules is an in-process RuleStore.
type Rules struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]models.AutomationRule
}

func NewRules() *Rules {
	return &Rules{items: make(map[int64]models.AutomationRule)}
}

func (s *Rules) Create(_ context.Context, r *models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	r.ID = s.nextID
	s.items[r.ID] = cloneRule(*r)
	return nil
}

func (s *Rules) Update(_ context.Context, r *models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[r.ID]; !ok {
		return store.ErrNotFound
	}
	s.items[r.ID] = cloneRule(*r)
	return nil
}

func (s *Rules) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Rules) Get(_ context.Context, id int64) (*models.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneRule(r)
	return &out, nil
}

func (s *Rules) List(_ context.Context) ([]models.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AutomationRule, 0, len(s.items))
	for _, r := range s.items {
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneRule(r models.AutomationRule) models.AutomationRule {
	r.Conditions = append([]models.Condition(nil), r.Conditions...)
	return r
}

// Reminders is an in-process ReminderStore.
type Reminders struct {
	mu   sync.Mutex
	logs []models.ReminderLog
}

func NewReminders() *Reminders {
	return &Reminders{}
}

func (s *Reminders) Exists(_ context.Context, applicationID int64, reminderType models.ReminderType, dueCycle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(applicationID, reminderType, dueCycle), nil
}

func (s *Reminders) existsLocked(applicationID int64, reminderType models.ReminderType, dueCycle string) bool {
	for _, l := range s.logs {
		if !l.IsTest && l.ApplicationID == applicationID && l.Type == reminderType && l.DueCycle == dueCycle {
			return true
		}
	}
	return false
}

func (s *Reminders) Append(_ context.Context, log *models.ReminderLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !log.IsTest && s.existsLocked(log.ApplicationID, log.Type, log.DueCycle) {
		return store.ErrReminderExists
	}
	s.logs = append(s.logs, *log)
	return nil
}

func (s *Reminders) MarkDelivered(_ context.Context, id string, delivered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.logs {
		if s.logs[i].ID == id {
			s.logs[i].Delivered = delivered
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Reminders) List(_ context.Context, applicationID int64) ([]models.ReminderLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ReminderLog
	for _, l := range s.logs {
		if l.ApplicationID == applicationID {
			out = append(out, l)
		}
	}
	return out, nil
}
