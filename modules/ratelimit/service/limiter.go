package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/auth"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"github.com/protocorn/launchway/modules/ratelimit/model"
	"go.uber.org/zap"
)

const accountingRetries = 2

// Limiter enforces sliding-window limits backed by redis sorted sets.
// Admission checks fail open when the store is unreachable; accounting of
// successful LLM calls never drops silently (see RecordSuccess).
type Limiter struct {
	rdb         redis.Cmdable
	limits      map[model.LimitType]model.Limit
	adminEmails []string
	log         *logger.Logger
	now         func() time.Time
}

// NewLimiter builds the limiter from configuration
func NewLimiter(rdb redis.Cmdable, cfg config.RateLimitConfig, adminEmails []string, log *logger.Logger) *Limiter {
	return &Limiter{
		rdb: rdb,
		limits: map[model.LimitType]model.Limit{
			model.LimitLLMPerMinute:           {Window: time.Minute, Max: cfg.LLMPerMinute},
			model.LimitLLMPerDay:              {Window: 24 * time.Hour, Max: cfg.LLMPerDay},
			model.LimitTailoringPerUserDay:    {Window: 24 * time.Hour, Max: cfg.TailoringPerUserDay},
			model.LimitApplicationsPerUserDay: {Window: 24 * time.Hour, Max: cfg.ApplicationsPerUserDay},
			model.LimitAPIPerUserMinute:       {Window: time.Minute, Max: cfg.APIPerUserMinute},
			model.LimitConcurrentTailoring:    {Window: 0, Max: cfg.ConcurrentTailoring},
			model.LimitConcurrentSessions:     {Window: 0, Max: cfg.ConcurrentSessions},
		},
		adminEmails: adminEmails,
		log:         log,
		now:         time.Now,
	}
}

// IsAdmin reports whether the identity bypasses all limits
func (l *Limiter) IsAdmin(identity auth.Identity) bool {
	return identity.Admin || auth.IsAdminEmail(identity.Email, l.adminEmails)
}

func key(limitType model.LimitType, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", limitType, identifier)
}

// Check performs an admission check without consuming. Store errors fail
// open: a degraded counter must not take the service down.
func (l *Limiter) Check(ctx context.Context, limitType model.LimitType, identifier string) (model.CheckResult, error) {
	limit, ok := l.limits[limitType]
	if !ok {
		return model.CheckResult{}, model.ErrUnknownLimit
	}
	now := l.now()

	if limit.Window == 0 {
		// Concurrency limits count live members, not a time window.
		count, err := l.rdb.SCard(ctx, key(limitType, identifier)).Result()
		if err != nil {
			l.log.Warn("rate limit store unavailable, failing open",
				zap.String("limit", string(limitType)), zap.Error(err))
			return model.CheckResult{Allowed: true, Remaining: limit.Max, ResetAt: now}, nil
		}
		remaining := limit.Max - int(count)
		return model.CheckResult{
			Allowed:   remaining > 0,
			Remaining: max(remaining, 0),
			ResetAt:   now,
		}, nil
	}

	windowStart := now.Add(-limit.Window)
	k := key(limitType, identifier)

	pipe := l.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, k)
	oldestCmd := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("rate limit store unavailable, failing open",
			zap.String("limit", string(limitType)), zap.Error(err))
		return model.CheckResult{Allowed: true, Remaining: limit.Max, ResetAt: now}, nil
	}

	count := int(countCmd.Val())
	resetAt := now.Add(limit.Window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(limit.Window)
	}
	remaining := limit.Max - count
	return model.CheckResult{
		Allowed:   remaining > 0,
		Remaining: max(remaining, 0),
		ResetAt:   resetAt,
	}, nil
}

// Consume charges n units against the window
func (l *Limiter) Consume(ctx context.Context, limitType model.LimitType, identifier string, n int) error {
	limit, ok := l.limits[limitType]
	if !ok {
		return model.ErrUnknownLimit
	}
	if limit.Window == 0 {
		return fmt.Errorf("concurrency limit %s is acquired, not consumed", limitType)
	}
	now := l.now()
	k := key(limitType, identifier)
	members := make([]redis.Z, n)
	for i := range members {
		members[i] = redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: fmt.Sprintf("%d:%s", now.UnixNano(), uuid.New().String()),
		}
	}
	pipe := l.rdb.Pipeline()
	pipe.ZAdd(ctx, k, members...)
	pipe.Expire(ctx, k, limit.Window+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

// Acquire adds a member to a concurrency limit set. Returns a handle that
// must be passed to ReleaseSlot when the long-lived operation finishes.
func (l *Limiter) Acquire(ctx context.Context, limitType model.LimitType, identifier string) (string, error) {
	res, err := l.Check(ctx, limitType, identifier)
	if err != nil {
		return "", err
	}
	if !res.Allowed {
		return "", model.ErrQuotaExhausted
	}
	member := uuid.New().String()
	if err := l.rdb.SAdd(ctx, key(limitType, identifier), member).Err(); err != nil {
		// Fail open: the slot proceeds untracked rather than blocking work.
		l.log.Warn("concurrency slot not recorded", zap.Error(err))
	}
	return member, nil
}

// ReleaseSlot removes a concurrency member
func (l *Limiter) ReleaseSlot(ctx context.Context, limitType model.LimitType, identifier, member string) {
	if err := l.rdb.SRem(ctx, key(limitType, identifier), member).Err(); err != nil {
		l.log.Warn("concurrency slot release failed", zap.Error(err))
	}
}

// RecordSuccess charges one successful LLM call against both global
// windows. The write retries with a short backoff; if it still fails the
// call stands and the miss is logged as unbilled for operator attention.
func (l *Limiter) RecordSuccess(ctx context.Context, userID string) {
	for _, lt := range []model.LimitType{model.LimitLLMPerMinute, model.LimitLLMPerDay} {
		var err error
		for attempt := 0; attempt <= accountingRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(100 * time.Millisecond)
			}
			if err = l.Consume(ctx, lt, model.GlobalIdentifier, 1); err == nil {
				break
			}
		}
		if err != nil {
			l.log.Error("llm usage accounting failed",
				zap.String("limit", string(lt)),
				zap.String("user_id", userID),
				zap.Bool("unbilled", true),
				zap.Error(err),
			)
		}
	}
}

// Usage returns the current count inside the window for the status endpoint
func (l *Limiter) Usage(ctx context.Context, limitType model.LimitType, identifier string) (used, limit int, err error) {
	lim, ok := l.limits[limitType]
	if !ok {
		return 0, 0, model.ErrUnknownLimit
	}
	res, err := l.Check(ctx, limitType, identifier)
	if err != nil {
		return 0, lim.Max, err
	}
	return lim.Max - res.Remaining, lim.Max, nil
}
