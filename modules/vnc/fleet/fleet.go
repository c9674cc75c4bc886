package fleet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/vnc/coordinator"
	"github.com/protocorn/launchway/modules/vnc/model"
	"github.com/protocorn/launchway/modules/vnc/sandbox"
	"go.uber.org/zap"
)

// Fleet owns every live coordinator on this host plus the slot allocator.
// The allocator's critical section covers slot assignment only; session
// startup and teardown run outside it.
type Fleet struct {
	cfg     config.VNCConfig
	sandbox config.SandboxConfig
	repo    *SessionRepository
	host    string
	log     *logger.Logger

	mu       sync.Mutex
	slots    []bool // index -> taken
	sessions map[string]*liveSession
}

type liveSession struct {
	row        *model.VNCSession
	coord      *coordinator.Coordinator
	lastActive time.Time
}

// New creates the fleet
func New(cfg config.VNCConfig, sandboxCfg config.SandboxConfig, repo *SessionRepository, log *logger.Logger) *Fleet {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	return &Fleet{
		cfg:      cfg,
		sandbox:  sandboxCfg,
		repo:     repo,
		host:     host,
		log:      log,
		slots:    make([]bool, cfg.MaxSessions),
		sessions: make(map[string]*liveSession),
	}
}

// allocate reserves the smallest free slot
func (f *Fleet) allocate(userID, sessionID string) (model.Allocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.slots {
		if f.slots[i] {
			continue
		}
		f.slots[i] = true
		return model.Allocation{
			Index:         i,
			DisplayNum:    f.cfg.DisplayBase + i,
			VNCPort:       f.cfg.PortBase + i,
			WebSocketPort: f.cfg.WebSocketBase + i,
			SandboxHome:   filepath.Join(f.sandbox.HomeRoot, userID, sessionID),
		}, nil
	}
	return model.Allocation{}, model.ErrFleetFull
}

func (f *Fleet) free(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= 0 && index < len(f.slots) {
		f.slots[index] = false
	}
}

// Acquire starts a full session: slot, durable row, resource group. The
// returned coordinator is live; release it with Close.
func (f *Fleet) Acquire(ctx context.Context, userID, jobURL string, injectResume func(home string) (string, error)) (*coordinator.Coordinator, string, error) {
	sessionID := uuid.New().String()

	alloc, err := f.allocate(userID, sessionID)
	if err != nil {
		return nil, "", err
	}

	if _, err := sandbox.CreateHome(f.sandbox.HomeRoot, userID, sessionID); err != nil {
		f.free(alloc.Index)
		return nil, "", err
	}

	row := &model.VNCSession{
		ID:            sessionID,
		UserID:        userID,
		JobURL:        jobURL,
		DisplayNum:    alloc.DisplayNum,
		VNCPort:       alloc.VNCPort,
		WebSocketPort: alloc.WebSocketPort,
		Status:        model.StatusActive,
		AllocatedHost: f.host,
		SandboxHome:   alloc.SandboxHome,
	}
	if err := f.repo.Create(ctx, row); err != nil {
		f.free(alloc.Index)
		_ = sandbox.RemoveHome(alloc.SandboxHome)
		return nil, "", fmt.Errorf("unable to persist session row: %w", err)
	}

	coord := coordinator.New(sessionID, userID, jobURL, alloc, f.log)
	resumePath, err := coord.Start(ctx, f.sandbox, injectResume)
	if err != nil {
		_ = f.repo.UpdateStatus(ctx, sessionID, model.StatusFailed)
		f.free(alloc.Index)
		return nil, "", err
	}

	f.mu.Lock()
	f.sessions[sessionID] = &liveSession{row: row, coord: coord, lastActive: time.Now()}
	f.mu.Unlock()

	f.log.Info("vnc session acquired",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("slot", alloc.Index),
	)
	return coord, resumePath, nil
}

// Get returns a live coordinator by session id
func (f *Fleet) Get(sessionID string) (*coordinator.Coordinator, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, false
	}
	s.lastActive = time.Now()
	return s.coord, true
}

// Touch refreshes a session's idle clock
func (f *Fleet) Touch(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.lastActive = time.Now()
	}
}

// Close tears a session down and frees its slot. The slot is only freed
// after the coordinator reports the browser dead.
func (f *Fleet) Close(ctx context.Context, sessionID string, status model.SessionStatus) {
	f.mu.Lock()
	s, ok := f.sessions[sessionID]
	if ok {
		delete(f.sessions, sessionID)
	}
	f.mu.Unlock()
	if !ok {
		return
	}

	s.coord.Stop()
	if s.coord.BrowserAlive() {
		f.log.Warn("browser still alive after stop, slot held",
			zap.String("session_id", sessionID))
	} else {
		f.free(s.coord.Allocation.Index)
	}

	if err := f.repo.UpdateStatus(ctx, sessionID, status); err != nil {
		f.log.Warn("session row status update failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	f.log.Info("vnc session closed",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
	)
}

// CloseAll tears down every live session (shutdown path)
func (f *Fleet) CloseAll(ctx context.Context) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	for _, id := range ids {
		f.Close(ctx, id, model.StatusClosed)
	}
}

// Recover recreates sessions whose durable rows say active within the
// recovery window. Rows that cannot be recreated are marked
// failed_recovery.
func (f *Fleet) Recover(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-f.cfg.RecoveryWindow)
	rows, err := f.repo.ListActive(ctx, f.host, cutoff)
	if err != nil {
		f.log.Error("session recovery listing failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		index := row.DisplayNum - f.cfg.DisplayBase
		if index < 0 || index >= f.cfg.MaxSessions {
			_ = f.repo.UpdateStatus(ctx, row.ID, model.StatusFailedRecovery)
			continue
		}

		f.mu.Lock()
		taken := f.slots[index]
		if !taken {
			f.slots[index] = true
		}
		f.mu.Unlock()
		if taken {
			_ = f.repo.UpdateStatus(ctx, row.ID, model.StatusFailedRecovery)
			continue
		}

		alloc := model.Allocation{
			Index:         index,
			DisplayNum:    row.DisplayNum,
			VNCPort:       row.VNCPort,
			WebSocketPort: row.WebSocketPort,
			SandboxHome:   filepath.Join(f.sandbox.HomeRoot, row.UserID, row.ID),
		}
		coord := coordinator.New(row.ID, row.UserID, row.JobURL, alloc, f.log)
		if _, err := coord.Start(ctx, f.sandbox, nil); err != nil {
			f.log.Warn("session recovery failed",
				zap.String("session_id", row.ID), zap.Error(err))
			_ = f.repo.UpdateStatus(ctx, row.ID, model.StatusFailedRecovery)
			f.free(index)
			continue
		}

		f.mu.Lock()
		f.sessions[row.ID] = &liveSession{row: row, coord: coord, lastActive: time.Now()}
		f.mu.Unlock()
		f.log.Info("session recovered", zap.String("session_id", row.ID))
	}
}

// Sweep closes sessions idle past the horizon. Run it periodically.
func (f *Fleet) Sweep(ctx context.Context) {
	horizon := time.Now().Add(-f.cfg.IdleHorizon)

	f.mu.Lock()
	var stale []string
	for id, s := range f.sessions {
		if s.lastActive.Before(horizon) {
			stale = append(stale, id)
		}
	}
	f.mu.Unlock()

	for _, id := range stale {
		f.log.Info("sweeping idle session", zap.String("session_id", id))
		f.Close(ctx, id, model.StatusClosed)
	}
}

// RunSweeper loops Sweep until ctx is cancelled
func (f *Fleet) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Live returns the number of live sessions
func (f *Fleet) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}
