package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"identrisk/internal/platform/postgres"
	"identrisk/internal/verification/models"
	"identrisk/pkg/platform/sentinel"
	txcontext "identrisk/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists records with database/sql. Stage results are JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	id, user_id, verification_type, status, document, liveness, face_match, registry,
	rejection_reason, rejection_kind, created_at, updated_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, v *models.Verification) error {
	row, err := toRow(v)
	if err != nil {
		return err
	}
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO verifications (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, row.args()...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id models.VerificationID) (*models.Verification, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT `+selectColumns+` FROM verifications WHERE id = $1`, uuid.UUID(id))
	return scanVerification(row)
}

func (s *PostgresStore) LatestForUser(ctx context.Context, userID string) (*models.Verification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM verifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return scanVerification(row)
}

func (s *PostgresStore) Execute(ctx context.Context, id models.VerificationID, validate ValidateFunc, mutate MutateFunc) (*models.Verification, error) {
	var result *models.Verification
	err := postgres.RunInTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		current, err := scanVerification(tx.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM verifications WHERE id = $1 FOR UPDATE`, uuid.UUID(id)))
		if err != nil {
			return err
		}
		if err := validate(current.Clone()); err != nil {
			return err
		}
		if err := mutate(ctx, current); err != nil {
			return err
		}

		row, err := toRow(current)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE verifications
			SET status = $4, document = $5, liveness = $6, face_match = $7, registry = $8,
			    rejection_reason = $9, rejection_kind = $10, updated_at = $12, completed_at = $13
			WHERE id = $1 AND user_id = $2 AND verification_type = $3 AND created_at = $11
		`, row.args()...); err != nil {
			return fmt.Errorf("update verification: %w", err)
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type verificationRow struct {
	id              uuid.UUID
	userID          string
	typ             string
	status          string
	document        []byte
	liveness        []byte
	faceMatch       []byte
	registry        []byte
	rejectionReason string
	rejectionKind   string
	createdAt       sql.NullTime
	updatedAt       sql.NullTime
	completedAt     sql.NullTime
}

func (r *verificationRow) args() []any {
	return []any{
		r.id, r.userID, r.typ, r.status,
		nullJSON(r.document), nullJSON(r.liveness), nullJSON(r.faceMatch), nullJSON(r.registry),
		r.rejectionReason, r.rejectionKind, r.createdAt.Time, r.updatedAt.Time, r.completedAt,
	}
}

func toRow(v *models.Verification) (*verificationRow, error) {
	row := &verificationRow{
		id:              uuid.UUID(v.ID),
		userID:          v.UserID,
		typ:             string(v.Type),
		status:          string(v.Status),
		rejectionReason: v.RejectionReason,
		rejectionKind:   string(v.RejectionKind),
		createdAt:       sql.NullTime{Time: v.CreatedAt, Valid: true},
		updatedAt:       sql.NullTime{Time: v.UpdatedAt, Valid: true},
	}
	if v.CompletedAt != nil {
		row.completedAt = sql.NullTime{Time: *v.CompletedAt, Valid: true}
	}
	var err error
	if row.document, err = marshalOptional(v.Document); err != nil {
		return nil, err
	}
	if row.liveness, err = marshalOptional(v.Liveness); err != nil {
		return nil, err
	}
	if row.faceMatch, err = marshalOptional(v.FaceMatch); err != nil {
		return nil, err
	}
	if row.registry, err = marshalOptional(v.Registry); err != nil {
		return nil, err
	}
	return row, nil
}

func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal stage result: %w", err)
	}
	return b, nil
}

func unmarshalOptional[T any](raw []byte) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("unmarshal stage result: %w", err)
	}
	return out, nil
}

// nullJSON sends JSONB as text; lib/pq would encode a []byte as bytea.
func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var r verificationRow
	err := row.Scan(&r.id, &r.userID, &r.typ, &r.status, &r.document, &r.liveness, &r.faceMatch, &r.registry,
		&r.rejectionReason, &r.rejectionKind, &r.createdAt, &r.updatedAt, &r.completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}

	v := &models.Verification{
		ID:              models.VerificationID(r.id),
		UserID:          r.userID,
		Type:            models.Type(r.typ),
		Status:          models.Status(r.status),
		RejectionReason: r.rejectionReason,
		RejectionKind:   models.RejectionKind(r.rejectionKind),
		CreatedAt:       r.createdAt.Time.UTC(),
		UpdatedAt:       r.updatedAt.Time.UTC(),
	}
	if r.completedAt.Valid {
		t := r.completedAt.Time.UTC()
		v.CompletedAt = &t
	}
	if v.Document, err = unmarshalOptional[models.DocumentExtraction](r.document); err != nil {
		return nil, err
	}
	if v.Liveness, err = unmarshalOptional[models.LivenessResult](r.liveness); err != nil {
		return nil, err
	}
	if v.FaceMatch, err = unmarshalOptional[models.FaceMatchResult](r.faceMatch); err != nil {
		return nil, err
	}
	if v.Registry, err = unmarshalOptional[models.RegistryResult](r.registry); err != nil {
		return nil, err
	}
	return v, nil
}
