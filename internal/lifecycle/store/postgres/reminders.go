package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

const reminderCycleConstraint = "reminder_logs_cycle_uq"

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

func (s *ReminderStore) Exists(ctx context.Context, applicationID int64, reminderType models.ReminderType, dueCycle string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM reminder_logs
			WHERE application_id = $1 AND reminder_type = $2 AND due_cycle = $3 AND is_test = FALSE
		)`,
		applicationID, string(reminderType), dueCycle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reminder log: %w", err)
	}
	return exists, nil
}

func (s *ReminderStore) Append(ctx context.Context, log *models.ReminderLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_logs (id, application_id, reminder_type, due_cycle, days_until_due, is_test, delivered, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.ApplicationID, string(log.Type), log.DueCycle, log.DaysUntilDue, log.IsTest, log.Delivered, log.SentAt,
	)
	if err != nil {
		if isUniqueViolation(err, reminderCycleConstraint) {
			return store.ErrReminderExists
		}
		return fmt.Errorf("insert reminder log: %w", err)
	}
	return nil
}

func (s *ReminderStore) MarkDelivered(ctx context.Context, id string, delivered bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminder_logs SET delivered = $2 WHERE id = $1`, id, delivered)
	if err != nil {
		return fmt.Errorf("mark reminder delivered: %w", err)
	}
	return requireAffected(res)
}

func (s *ReminderStore) List(ctx context.Context, applicationID int64) ([]models.ReminderLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, reminder_type, due_cycle, days_until_due, is_test, delivered, sent_at
		FROM reminder_logs
		WHERE application_id = $1
		ORDER BY sent_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query reminder logs: %w", err)
	}
	defer rows.Close()

	var out []models.ReminderLog
	for rows.Next() {
		var l models.ReminderLog
		var reminderType string
		if err := rows.Scan(&l.ID, &l.ApplicationID, &reminderType, &l.DueCycle, &l.DaysUntilDue, &l.IsTest, &l.Delivered, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan reminder log: %w", err)
		}
		l.Type = models.ReminderType(reminderType)
		out = append(out, l)
	}
	return out, rows.Err()
}
