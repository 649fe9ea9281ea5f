package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

const riskColumns = `id, application_id, user_ref, check_type, risk_score, fraud_signals,
	review_status, reviewed_by, review_notes, reviewed_at, created_at`

type RiskStore struct {
	db *sql.DB
}

func NewRiskStore(db *sql.DB) *RiskStore {
	return &RiskStore{db: db}
}

func (s *RiskStore) Create(ctx context.Context, a *models.RiskAssessment) error {
	signals, err := json.Marshal(nonNilSignals(a.FraudSignals))
	if err != nil {
		return fmt.Errorf("marshal fraud signals: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO risk_assessments (
			application_id, user_ref, check_type, risk_score, fraud_signals, review_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		a.ApplicationID,
		a.UserRef,
		a.CheckType,
		a.RiskScore,
		signals,
		string(a.ReviewStatus),
		a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert risk assessment: %w", err)
	}
	return nil
}

func (s *RiskStore) Get(ctx context.Context, id int64) (*models.RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+riskColumns+` FROM risk_assessments WHERE id = $1`, id)
	a, err := scanRisk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return a, err
}

func (s *RiskStore) Review(ctx context.Context, id int64, status models.ReviewStatus, reviewer, notes string, at time.Time) (*models.RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE risk_assessments
		SET review_status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5
		WHERE id = $1 AND review_status = 'pending'
		RETURNING `+riskColumns,
		id, string(status), reviewer, notes, at,
	)
	a, err := scanRisk(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review risk assessment: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM risk_assessments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check risk assessment: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrAlreadyReviewed
}

func (s *RiskStore) ListPending(ctx context.Context) ([]models.RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+riskColumns+` FROM risk_assessments WHERE review_status = 'pending' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pending reviews: %w", err)
	}
	defer rows.Close()

	var out []models.RiskAssessment
	for rows.Next() {
		a, err := scanRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk assessment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanRisk(row rowScanner) (*models.RiskAssessment, error) {
	var (
		a                 models.RiskAssessment
		signals           []byte
		reviewStatus      string
		reviewedBy, notes sql.NullString
		reviewedAt        sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.ApplicationID, &a.UserRef, &a.CheckType, &a.RiskScore, &signals,
		&reviewStatus, &reviewedBy, &notes, &reviewedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &a.FraudSignals); err != nil {
			return nil, fmt.Errorf("decode fraud signals: %w", err)
		}
	}
	a.FraudSignals = nonNilSignals(a.FraudSignals)
	a.ReviewStatus = models.ReviewStatus(reviewStatus)
	a.ReviewedBy = reviewedBy.String
	a.ReviewNotes = notes.String
	a.ReviewedAt = timePtr(reviewedAt)
	return &a, nil
}

func nonNilSignals(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
