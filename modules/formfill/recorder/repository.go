package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/protocorn/launchway/modules/formfill/model"
)

// ErrLogNotFound is returned when no action log exists for the job
var ErrLogNotFound = errors.New("action log not found")

const logTTL = 24 * time.Hour

// ActionLogRepository persists session action logs with a 24h TTL
type ActionLogRepository struct {
	pool *pgxpool.Pool
}

// NewActionLogRepository creates a new action log repository
func NewActionLogRepository(pool *pgxpool.Pool) *ActionLogRepository {
	return &ActionLogRepository{pool: pool}
}

// Save upserts the log for one (user, job)
func (r *ActionLogRepository) Save(ctx context.Context, userID, jobID string, records []model.ActionRecord, completed bool) error {
	blob, err := json.Marshal(records)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO action_logs (user_id, job_id, action_log_blob, created_at, expires_at, completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, job_id)
		DO UPDATE SET action_log_blob = $3, expires_at = $5, completed = $6
	`
	_, err = r.pool.Exec(ctx, query, userID, jobID, blob, now, now.Add(logTTL), completed)
	return err
}

// Get returns the records for one (user, job), honoring expiry
func (r *ActionLogRepository) Get(ctx context.Context, userID, jobID string) ([]model.ActionRecord, bool, error) {
	query := `
		SELECT action_log_blob, completed
		FROM action_logs
		WHERE user_id = $1 AND job_id = $2 AND expires_at > $3
	`

	var blob []byte
	var completed bool
	err := r.pool.QueryRow(ctx, query, userID, jobID, time.Now().UTC()).Scan(&blob, &completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrLogNotFound
		}
		return nil, false, err
	}

	var records []model.ActionRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, false, err
	}
	return records, completed, nil
}

// MarkCompleted sets the terminal flag on a job's records
func (r *ActionLogRepository) MarkCompleted(ctx context.Context, userID, jobID string) error {
	query := `UPDATE action_logs SET completed = true WHERE user_id = $1 AND job_id = $2`
	_, err := r.pool.Exec(ctx, query, userID, jobID)
	return err
}

// PurgeExpired removes logs past their TTL; returns rows removed
func (r *ActionLogRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM action_logs WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
