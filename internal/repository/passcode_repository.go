package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/google/uuid"
)

// ErrPasscodeUsed is returned by Consume when the code is unknown or was
// already consumed.
var ErrPasscodeUsed = errors.New("passcode is invalid or already used")

// PasscodeRepository is the passcode store.
type PasscodeRepository struct {
	db DB
}

// NewPasscodeRepository creates a new PasscodeRepository.
func NewPasscodeRepository(db DB) *PasscodeRepository {
	return &PasscodeRepository{db: db}
}

// IsValid reports whether the code exists and is unused.
func (r *PasscodeRepository) IsValid(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM passcodes WHERE code = $1 AND used = FALSE)`, code,
	).Scan(&ok)
	return ok, err
}

// Consume marks the code used by userID. The conditional update makes
// concurrent consumers race on the row: exactly one sees a matched row.
func (r *PasscodeRepository) Consume(ctx context.Context, code string, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE passcodes SET used = TRUE, used_by = $2, used_at = NOW()
		 WHERE code = $1 AND used = FALSE`,
		code, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrPasscodeUsed
	}
	return nil
}

// CreateBatch inserts new codes, skipping any that already exist.
func (r *PasscodeRepository) CreateBatch(ctx context.Context, codes []string) ([]model.Passcode, error) {
	rows, err := r.db.Query(ctx,
		`INSERT INTO passcodes (code)
		 SELECT unnest($1::text[])
		 ON CONFLICT (code) DO NOTHING
		 RETURNING code, used, created_at`,
		codes,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	created := make([]model.Passcode, 0, len(codes))
	for rows.Next() {
		var p model.Passcode
		if err := rows.Scan(&p.Code, &p.Used, &p.CreatedAt); err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	return created, rows.Err()
}

// ListPaginated retrieves passcodes newest first, optionally filtered by
// used state.
func (r *PasscodeRepository) ListPaginated(ctx context.Context, used *bool, limit, offset int) ([]model.Passcode, int, error) {
	where := ""
	var args []interface{}
	if used != nil {
		where = ` WHERE used = $1`
		args = append(args, *used)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM passcodes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argIdx := len(args) + 1
	query := `SELECT code, used, used_by, used_at, created_at FROM passcodes` + where +
		` ORDER BY created_at DESC, code LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var passcodes []model.Passcode
	for rows.Next() {
		var p model.Passcode
		if err := rows.Scan(&p.Code, &p.Used, &p.UsedBy, &p.UsedAt, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		passcodes = append(passcodes, p)
	}
	return passcodes, total, rows.Err()
}
