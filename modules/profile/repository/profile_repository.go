package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/protocorn/launchway/modules/profile/model"
)

// ProfileRepository implements ports.ProfileRepository
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetByUserID retrieves a user's profile. The row stores the view as jsonb;
// unknown keys in stored data are dropped by the closed-struct decode.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*model.ProfileView, error) {
	query := `
		SELECT data
		FROM user_profiles
		WHERE user_id = $1
	`

	var raw []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrProfileNotFound
		}
		return nil, err
	}

	profile := &model.ProfileView{}
	if err := json.Unmarshal(raw, profile); err != nil {
		return nil, err
	}
	profile.UserID = userID
	return profile, nil
}

// Upsert stores a user's profile
func (r *ProfileRepository) Upsert(ctx context.Context, profile *model.ProfileView) error {
	query := `
		INSERT INTO user_profiles (user_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET data = $2, updated_at = $3
	`

	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query, profile.UserID, raw, time.Now().UTC())
	return err
}
