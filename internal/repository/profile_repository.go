package repository

import (
	"context"
	"errors"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository is the role store: one profile row per user.
type ProfileRepository struct {
	db DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves a profile by user ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRow(ctx,
		`SELECT id, full_name, role, created_at, updated_at FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetRole returns the stored role for a user.
func (r *ProfileRepository) GetRole(ctx context.Context, userID uuid.UUID) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProfileNotFound
		}
		return "", err
	}
	return role, nil
}

// SetRole changes a user's stored role.
func (r *ProfileRepository) SetRole(ctx context.Context, userID uuid.UUID, role model.Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2`, role, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
