package ports

import (
	"context"

	"github.com/protocorn/launchway/modules/sessions/model"
)

// BatchRepository defines the interface for batch/slot data access
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *model.Batch) error
	GetBatch(ctx context.Context, userID, batchID string) (*model.Batch, error)
	UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error
	GetSlot(ctx context.Context, batchID, slotID string) (*model.JobSlot, error)
	UpdateSlot(ctx context.Context, slot *model.JobSlot) error
}
