package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/protocorn/launchway/modules/sessions/model"
)

// BatchRepository implements ports.BatchRepository
type BatchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

// CreateBatch inserts the batch and all its slots
func (r *BatchRepository) CreateBatch(ctx context.Context, batch *model.Batch) error {
	now := time.Now().UTC()
	batch.ID = uuid.New().String()
	batch.CreatedAt = now
	batch.Status = model.BatchProcessing

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO batches (id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`, batch.ID, batch.UserID, batch.Status, batch.CreatedAt)
	if err != nil {
		return err
	}

	for _, slot := range batch.Slots {
		slot.ID = uuid.New().String()
		slot.BatchID = batch.ID
		slot.Status = model.SlotQueued
		slot.CreatedAt = now
		slot.UpdatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO job_slots (id, batch_id, job_url, status, progress, error, vnc_session_id, tailor_resume, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, slot.ID, slot.BatchID, slot.JobURL, slot.Status, slot.Progress, slot.Error, slot.VNCSessionID, slot.TailorResume, slot.CreatedAt, slot.UpdatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetBatch returns a batch with its slots in creation order
func (r *BatchRepository) GetBatch(ctx context.Context, userID, batchID string) (*model.Batch, error) {
	batch := &model.Batch{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, status, created_at
		FROM batches
		WHERE id = $1 AND user_id = $2
	`, batchID, userID).Scan(&batch.ID, &batch.UserID, &batch.Status, &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBatchNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, job_url, status, progress, error, vnc_session_id, tailor_resume, created_at, updated_at
		FROM job_slots
		WHERE batch_id = $1
		ORDER BY created_at, id
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		slot := &model.JobSlot{}
		if err := rows.Scan(
			&slot.ID, &slot.BatchID, &slot.JobURL, &slot.Status, &slot.Progress,
			&slot.Error, &slot.VNCSessionID, &slot.TailorResume, &slot.CreatedAt, &slot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		batch.Slots = append(batch.Slots, slot)
	}
	return batch, rows.Err()
}

// UpdateBatchStatus transitions the batch
func (r *BatchRepository) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE batches SET status = $2 WHERE id = $1`, batchID, status)
	return err
}

// GetSlot returns one slot
func (r *BatchRepository) GetSlot(ctx context.Context, batchID, slotID string) (*model.JobSlot, error) {
	slot := &model.JobSlot{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, batch_id, job_url, status, progress, error, vnc_session_id, tailor_resume, created_at, updated_at
		FROM job_slots
		WHERE batch_id = $1 AND id = $2
	`, batchID, slotID).Scan(
		&slot.ID, &slot.BatchID, &slot.JobURL, &slot.Status, &slot.Progress,
		&slot.Error, &slot.VNCSessionID, &slot.TailorResume, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrSlotNotFound
		}
		return nil, err
	}
	return slot, nil
}

// UpdateSlot persists a slot's mutable fields
func (r *BatchRepository) UpdateSlot(ctx context.Context, slot *model.JobSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE job_slots
		SET status = $2, progress = $3, error = $4, vnc_session_id = $5, updated_at = $6
		WHERE id = $1
	`, slot.ID, slot.Status, slot.Progress, slot.Error, slot.VNCSessionID, slot.UpdatedAt)
	return err
}
