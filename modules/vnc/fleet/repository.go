package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/protocorn/launchway/modules/vnc/model"
)

// SessionRepository persists VNCSession rows
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a session row
func (r *SessionRepository) Create(ctx context.Context, s *model.VNCSession) error {
	query := `
		INSERT INTO vnc_sessions (id, user_id, job_url, display_num, vnc_port, websocket_port, status, allocated_host, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	s.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.JobURL, s.DisplayNum, s.VNCPort, s.WebSocketPort,
		s.Status, s.AllocatedHost, s.CreatedAt,
	)
	return err
}

// GetByID retrieves one session row
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.VNCSession, error) {
	query := `
		SELECT id, user_id, job_url, display_num, vnc_port, websocket_port, status, allocated_host, created_at
		FROM vnc_sessions
		WHERE id = $1
	`
	s := &model.VNCSession{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.JobURL, &s.DisplayNum, &s.VNCPort, &s.WebSocketPort,
		&s.Status, &s.AllocatedHost, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListActive returns rows with active status created after cutoff
func (r *SessionRepository) ListActive(ctx context.Context, host string, cutoff time.Time) ([]*model.VNCSession, error) {
	query := `
		SELECT id, user_id, job_url, display_num, vnc_port, websocket_port, status, allocated_host, created_at
		FROM vnc_sessions
		WHERE status = $1 AND allocated_host = $2 AND created_at > $3
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, model.StatusActive, host, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.VNCSession
	for rows.Next() {
		s := &model.VNCSession{}
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.JobURL, &s.DisplayNum, &s.VNCPort, &s.WebSocketPort,
			&s.Status, &s.AllocatedHost, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a session row
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE vnc_sessions SET status = $2 WHERE id = $1`, id, status)
	return err
}
