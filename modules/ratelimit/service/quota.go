package service

import (
	"container/heap"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/ratelimit/model"
	"go.uber.org/zap"
)

// reservation is one waiter or holder in the LLM queue
type reservation struct {
	token    string
	userID   string
	priority int
	seq      uint64
	ready    chan struct{}
	index    int
}

type reservationQueue []*reservation

func (q reservationQueue) Len() int { return len(q) }
func (q reservationQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q reservationQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *reservationQueue) Push(x any) {
	r := x.(*reservation)
	r.index = len(*q)
	*q = append(*q, r)
}
func (q *reservationQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}

// QuotaManager serializes access to the global LLM budget with a
// priority-ordered reservation queue. It implements llm.QuotaGate.
type QuotaManager struct {
	limiter     *Limiter
	maxInFlight int

	mu       sync.Mutex
	queue    reservationQueue
	inFlight map[string]*reservation
	seq      uint64
	log      *logger.Logger
}

// NewQuotaManager creates the quota manager. maxInFlight bounds concurrent
// model calls on this host.
func NewQuotaManager(limiter *Limiter, maxInFlight int, log *logger.Logger) *QuotaManager {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &QuotaManager{
		limiter:     limiter,
		maxInFlight: maxInFlight,
		inFlight:    make(map[string]*reservation),
		log:         log,
	}
}

// Reserve returns ErrQuotaExhausted at once when the minute or day budget
// denies a call; otherwise it blocks until the caller holds one of the
// in-flight slots. Lower priority is served sooner.
func (m *QuotaManager) Reserve(ctx context.Context, userID string, priority int) (string, error) {
	res, err := m.limiter.Check(ctx, model.LimitLLMPerMinute, model.GlobalIdentifier)
	if err == nil && !res.Allowed {
		return "", model.ErrQuotaExhausted
	}
	day, err := m.limiter.Check(ctx, model.LimitLLMPerDay, model.GlobalIdentifier)
	if err == nil && !day.Allowed {
		return "", model.ErrQuotaExhausted
	}

	r := &reservation{
		token:    uuid.New().String(),
		userID:   userID,
		priority: priority,
		ready:    make(chan struct{}),
	}

	m.mu.Lock()
	m.seq++
	r.seq = m.seq
	heap.Push(&m.queue, r)
	m.dispatchLocked()
	m.mu.Unlock()

	select {
	case <-r.ready:
		return r.token, nil
	case <-ctx.Done():
		m.mu.Lock()
		if r.index >= 0 {
			heap.Remove(&m.queue, r.index)
		} else if _, held := m.inFlight[r.token]; held {
			// Granted between ctx expiry and our lock; give the slot back.
			delete(m.inFlight, r.token)
			m.dispatchLocked()
		}
		m.mu.Unlock()
		return "", ctx.Err()
	}
}

// Release frees a reservation slot. Safe to call more than once.
func (m *QuotaManager) Release(_ context.Context, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[token]; !ok {
		return
	}
	delete(m.inFlight, token)
	m.dispatchLocked()
}

// RecordUsage charges one successful call; never fails the caller
func (m *QuotaManager) RecordUsage(ctx context.Context, userID string) {
	m.limiter.RecordSuccess(ctx, userID)
}

// QueuePosition returns the 0-based position of a waiting reservation, or
// -1 if it is not queued (already granted or unknown).
func (m *QuotaManager) QueuePosition(token string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *reservation
	for _, r := range m.queue {
		if r.token == token {
			target = r
			break
		}
	}
	if target == nil {
		return -1
	}
	pos := 0
	for _, r := range m.queue {
		if r == target {
			continue
		}
		if r.priority < target.priority || (r.priority == target.priority && r.seq < target.seq) {
			pos++
		}
	}
	return pos
}

// QueueDepth returns waiting and in-flight counts for the status endpoint
func (m *QuotaManager) QueueDepth() (waiting, inFlight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue), len(m.inFlight)
}

// dispatchLocked grants queue heads while in-flight slots remain
func (m *QuotaManager) dispatchLocked() {
	for len(m.inFlight) < m.maxInFlight && m.queue.Len() > 0 {
		r := heap.Pop(&m.queue).(*reservation)
		m.inFlight[r.token] = r
		close(r.ready)
		m.log.Debug("llm reservation granted",
			zap.String("token", r.token),
			zap.String("user_id", r.userID),
			zap.Int("priority", r.priority),
		)
	}
}
