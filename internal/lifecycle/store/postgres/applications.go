package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"loan-lifecycle/internal/common/database"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

const (
	uniqueViolation          = "23505"
	activeIdentityConstraint = "loan_applications_active_identity_uq"
)

const applicationColumns = `id, tracking_number, identity_key, status,
	applicant_name, applicant_email, applicant_phone, email_opt_out, sms_opt_out,
	loan_type, requested_amount, approved_amount, processing_fee_amount, term_days,
	due_date, risk_score, risk_review_status, created_at, updated_at,
	approved_at, fee_paid_at, disbursed_at, closed_at, last_reminder_sent_at`

type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

func (s *ApplicationStore) Create(ctx context.Context, app *models.LoanApplication, audit *models.AuditEntry) error {
	return database.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO loan_applications (
				tracking_number, identity_key, status,
				applicant_name, applicant_email, applicant_phone, email_opt_out, sms_opt_out,
				loan_type, requested_amount, term_days, risk_score, risk_review_status,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
			RETURNING id`,
			app.TrackingNumber,
			app.IdentityKey,
			string(app.Status),
			app.Applicant.Name,
			app.Applicant.Email,
			app.Applicant.Phone,
			app.Applicant.EmailOptOut,
			app.Applicant.SMSOptOut,
			app.LoanType,
			app.RequestedAmount,
			app.TermDays,
			app.RiskScore,
			nullString(string(app.RiskReviewStatus)),
			app.CreatedAt,
		).Scan(&app.ID)
		if err != nil {
			if isUniqueViolation(err, activeIdentityConstraint) {
				return store.ErrDuplicateIdentity
			}
			return fmt.Errorf("insert application: %w", err)
		}

		if audit != nil {
			audit.ApplicationID = app.ID
			if err := insertAudit(ctx, tx, audit); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ApplicationStore) Get(ctx context.Context, id int64) (*models.LoanApplication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return app, err
}

func (s *ApplicationStore) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.LoanApplication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications WHERE tracking_number = $1`, trackingNumber)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return app, err
}

func (s *ApplicationStore) FindByIdentity(ctx context.Context, identityKey string) ([]models.LoanApplication, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications WHERE identity_key = $1 ORDER BY id`, identityKey)
	if err != nil {
		return nil, fmt.Errorf("query applications by identity: %w", err)
	}
	return collectApplications(rows)
}

func (s *ApplicationStore) ListByStatus(ctx context.Context, statuses []models.Status) ([]models.LoanApplication, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications WHERE status = ANY($1) ORDER BY id`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("query applications by status: %w", err)
	}
	return collectApplications(rows)
}

// Update holds a row lock (SELECT ... FOR UPDATE) for the duration of fn, so
// concurrent updates to one application serialize on the database.
func (s *ApplicationStore) Update(ctx context.Context, id int64, fn store.Mutation) (*models.LoanApplication, error) {
	var snapshot, updated *models.LoanApplication

	err := database.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications WHERE id = $1 FOR UPDATE`, id)
		current, err := scanApplication(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		snapshot = current

		working := *current
		audit, err := fn(&working)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE loan_applications SET
				status = $2,
				approved_amount = $3,
				processing_fee_amount = $4,
				due_date = $5,
				risk_score = $6,
				risk_review_status = $7,
				updated_at = $8,
				approved_at = $9,
				fee_paid_at = $10,
				disbursed_at = $11,
				closed_at = $12,
				last_reminder_sent_at = $13
			WHERE id = $1`,
			id,
			string(working.Status),
			nullInt64(working.ApprovedAmount),
			nullInt64(working.ProcessingFeeAmount),
			nullDate(working.DueDate),
			working.RiskScore,
			nullString(string(working.RiskReviewStatus)),
			working.UpdatedAt,
			nullTime(working.ApprovedAt),
			nullTime(working.FeePaidAt),
			nullTime(working.DisbursedAt),
			nullTime(working.ClosedAt),
			nullTime(working.LastReminderSentAt),
		)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}

		if audit != nil {
			audit.ApplicationID = id
			if err := insertAudit(ctx, tx, audit); err != nil {
				return err
			}
		}
		updated = &working
		return nil
	})
	if errors.Is(err, store.ErrNoChange) {
		return snapshot, nil
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ApplicationStore) History(ctx context.Context, id int64) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, from_status, to_status, actor, note, created_at
		FROM loan_audit_log
		WHERE application_id = $1
		ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var from, to string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &from, &to, &e.Actor, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.From = models.Status(from)
		e.To = models.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertAudit(ctx context.Context, tx *sql.Tx, e *models.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loan_audit_log (id, application_id, from_status, to_status, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ApplicationID, string(e.From), string(e.To), e.Actor, e.Note, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.LoanApplication, error) {
	var (
		app                       models.LoanApplication
		status                    string
		approvedAmount, feeAmount sql.NullInt64
		riskScore                 sql.NullInt64
		reviewStatus              sql.NullString
		dueDate, approvedAt       sql.NullTime
		feePaidAt, disbursedAt    sql.NullTime
		closedAt, lastReminderAt  sql.NullTime
	)

	err := row.Scan(
		&app.ID, &app.TrackingNumber, &app.IdentityKey, &status,
		&app.Applicant.Name, &app.Applicant.Email, &app.Applicant.Phone,
		&app.Applicant.EmailOptOut, &app.Applicant.SMSOptOut,
		&app.LoanType, &app.RequestedAmount, &approvedAmount, &feeAmount, &app.TermDays,
		&dueDate, &riskScore, &reviewStatus, &app.CreatedAt, &app.UpdatedAt,
		&approvedAt, &feePaidAt, &disbursedAt, &closedAt, &lastReminderAt,
	)
	if err != nil {
		return nil, err
	}

	app.Status = models.Status(status)
	app.ApprovedAmount = approvedAmount.Int64
	app.ProcessingFeeAmount = feeAmount.Int64
	app.RiskScore = int(riskScore.Int64)
	app.RiskReviewStatus = models.ReviewStatus(reviewStatus.String)
	app.DueDate = timePtr(dueDate)
	app.ApprovedAt = timePtr(approvedAt)
	app.FeePaidAt = timePtr(feePaidAt)
	app.DisbursedAt = timePtr(disbursedAt)
	app.ClosedAt = timePtr(closedAt)
	app.LastReminderSentAt = timePtr(lastReminderAt)
	return &app, nil
}

func collectApplications(rows *sql.Rows) ([]models.LoanApplication, error) {
	defer rows.Close()

	var out []models.LoanApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, *app)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

func nullInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// nullDate sends a calendar date as text so the session time zone cannot
// shift it.
func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
