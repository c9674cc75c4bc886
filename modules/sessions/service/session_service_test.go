package service

import (
	"context"
	"testing"
	"time"

	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/logger"
	rlservice "github.com/protocorn/launchway/modules/ratelimit/service"
	"github.com/protocorn/launchway/modules/sessions/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBatchRepository implements ports.BatchRepository
type MockBatchRepository struct {
	CreateBatchFunc       func(ctx context.Context, batch *model.Batch) error
	GetBatchFunc          func(ctx context.Context, userID, batchID string) (*model.Batch, error)
	UpdateBatchStatusFunc func(ctx context.Context, batchID string, status model.BatchStatus) error
	GetSlotFunc           func(ctx context.Context, batchID, slotID string) (*model.JobSlot, error)
	UpdateSlotFunc        func(ctx context.Context, slot *model.JobSlot) error
}

func (m *MockBatchRepository) CreateBatch(ctx context.Context, batch *model.Batch) error {
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, batch)
	}
	batch.ID = "batch-1"
	for i, slot := range batch.Slots {
		slot.ID = "slot-" + string(rune('a'+i))
		slot.Status = model.SlotQueued
	}
	return nil
}

func (m *MockBatchRepository) GetBatch(ctx context.Context, userID, batchID string) (*model.Batch, error) {
	if m.GetBatchFunc != nil {
		return m.GetBatchFunc(ctx, userID, batchID)
	}
	return nil, model.ErrBatchNotFound
}

func (m *MockBatchRepository) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error {
	if m.UpdateBatchStatusFunc != nil {
		return m.UpdateBatchStatusFunc(ctx, batchID, status)
	}
	return nil
}

func (m *MockBatchRepository) GetSlot(ctx context.Context, batchID, slotID string) (*model.JobSlot, error) {
	if m.GetSlotFunc != nil {
		return m.GetSlotFunc(ctx, batchID, slotID)
	}
	return nil, model.ErrSlotNotFound
}

func (m *MockBatchRepository) UpdateSlot(ctx context.Context, slot *model.JobSlot) error {
	if m.UpdateSlotFunc != nil {
		return m.UpdateSlotFunc(ctx, slot)
	}
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

func testService(t *testing.T, repo *MockBatchRepository) *SessionService {
	t.Helper()
	limiter := rlservice.NewLimiter(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}), config.RateLimitConfig{ApplicationsPerUserDay: 50}, nil, testLogger(t))

	return NewSessionService(
		repo,
		nil, // profiles: not reached in these tests
		nil, // fleet: not reached in these tests
		limiter,
		nil, // action logs: not reached in these tests
		nil, // credentials: not reached in these tests
		nil, nil, nil, nil,
		config.AgentConfig{MaxBatchURLs: 10, MaxPasses: 4},
		config.ServerConfig{Host: "agent.example.com", Env: "production"},
		2,
		testLogger(t),
	)
}

func TestStartBatch_Validation(t *testing.T) {
	t.Run("empty batch is a validation error", func(t *testing.T) {
		svc := testService(t, &MockBatchRepository{})
		_, err := svc.StartBatch(context.Background(), "u1", &model.StartBatchRequest{})
		assert.ErrorIs(t, err, model.ErrEmptyBatch)
	})

	t.Run("oversized batch is rejected", func(t *testing.T) {
		svc := testService(t, &MockBatchRepository{})
		req := &model.StartBatchRequest{}
		for i := 0; i < 11; i++ {
			req.JobURLs = append(req.JobURLs, "https://jobs.example.com/1")
		}
		_, err := svc.StartBatch(context.Background(), "u1", req)
		assert.ErrorIs(t, err, model.ErrBatchTooLarge)
	})

	t.Run("invalid url is rejected", func(t *testing.T) {
		svc := testService(t, &MockBatchRepository{})
		req := &model.StartBatchRequest{JobURLs: []string{"ftp://example.com/job"}}
		_, err := svc.StartBatch(context.Background(), "u1", req)
		assert.ErrorIs(t, err, model.ErrInvalidURL)
	})

	t.Run("valid batch is created with one slot per url", func(t *testing.T) {
		var created *model.Batch
		repo := &MockBatchRepository{
			CreateBatchFunc: func(ctx context.Context, batch *model.Batch) error {
				created = batch
				batch.ID = "batch-1"
				return nil
			},
			GetBatchFunc: func(ctx context.Context, userID, batchID string) (*model.Batch, error) {
				// Slots already terminal so background processing is a no-op.
				return &model.Batch{ID: batchID, UserID: userID, Slots: []*model.JobSlot{
					{ID: "s1", Status: model.SlotFailed},
				}}, nil
			},
		}
		svc := testService(t, repo)

		batch, err := svc.StartBatch(context.Background(), "u1", &model.StartBatchRequest{
			JobURLs:      []string{"https://jobs.example.com/1", "https://jobs.example.com/2"},
			TailorResume: []bool{true},
		})

		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, "batch-1", batch.ID)
		require.Len(t, created.Slots, 2)
		assert.True(t, created.Slots[0].TailorResume)
		assert.False(t, created.Slots[1].TailorResume)
	})
}

func TestStatus(t *testing.T) {
	repo := &MockBatchRepository{
		GetBatchFunc: func(ctx context.Context, userID, batchID string) (*model.Batch, error) {
			return &model.Batch{
				ID:     batchID,
				UserID: userID,
				Status: model.BatchProcessing,
				Slots: []*model.JobSlot{
					{ID: "s1", JobURL: "https://a", Status: model.SlotSubmitted, Progress: 100},
					{ID: "s2", JobURL: "https://b", Status: model.SlotReadyForReview, Progress: 90, VNCSessionID: "vnc-1", Error: "captcha detected"},
					{ID: "s3", JobURL: "https://c", Status: model.SlotFailed, Error: "navigation failed"},
					{ID: "s4", JobURL: "https://d", Status: model.SlotFilling, Progress: 40},
					{ID: "s5", JobURL: "https://e", Status: model.SlotQueued},
				},
			}, nil
		},
	}
	svc := testService(t, repo)

	status, err := svc.Status(context.Background(), "u1", "batch-1")
	require.NoError(t, err)

	t.Run("counts are consistent", func(t *testing.T) {
		assert.Equal(t, 5, status.Total)
		sum := status.Completed + status.ReadyForReview + status.Failed + status.InProgress + status.Queued
		assert.Equal(t, status.Total, sum)
		assert.Equal(t, 1, status.Completed)
		assert.Equal(t, 1, status.ReadyForReview)
		assert.Equal(t, 1, status.Failed)
		assert.Equal(t, 1, status.InProgress)
		assert.Equal(t, 1, status.Queued)
	})

	t.Run("review slots expose a viewer url", func(t *testing.T) {
		var review *model.SlotView
		for i := range status.Slots {
			if status.Slots[i].Status == model.SlotReadyForReview {
				review = &status.Slots[i]
			}
		}
		require.NotNil(t, review)
		assert.Equal(t, "wss://agent.example.com/vnc-stream/vnc-1", review.VNCViewerURL)
		assert.Equal(t, "captcha detected", review.Error)
	})

	t.Run("non-review slots have no viewer url", func(t *testing.T) {
		for _, slot := range status.Slots {
			if slot.Status != model.SlotReadyForReview {
				assert.Empty(t, slot.VNCViewerURL)
			}
		}
	})
}

func TestMarkSubmitted(t *testing.T) {
	t.Run("unknown batch", func(t *testing.T) {
		svc := testService(t, &MockBatchRepository{})
		err := svc.MarkSubmitted(context.Background(), "u1", "nope", "slot")
		assert.ErrorIs(t, err, model.ErrBatchNotFound)
	})

	t.Run("slot not awaiting review", func(t *testing.T) {
		repo := &MockBatchRepository{
			GetBatchFunc: func(ctx context.Context, userID, batchID string) (*model.Batch, error) {
				return &model.Batch{ID: batchID}, nil
			},
			GetSlotFunc: func(ctx context.Context, batchID, slotID string) (*model.JobSlot, error) {
				return &model.JobSlot{ID: slotID, Status: model.SlotSubmitted}, nil
			},
		}
		svc := testService(t, repo)
		err := svc.MarkSubmitted(context.Background(), "u1", "b1", "s1")
		assert.ErrorIs(t, err, model.ErrSlotNotReviewable)
	})
}
