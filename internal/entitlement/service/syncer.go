package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/bizdash/internal/config"
	"github.com/smallbiznis/bizdash/internal/observability/metrics"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"github.com/smallbiznis/bizdash/pkg/db"
	"go.uber.org/zap"
)

type writeKind string

const (
	writePlan  writeKind = "plan"
	writeUsage writeKind = "usage"
)

var (
	ErrStateClosed = errors.New("state_closed")

	errSuperseded = errors.New("superseded")
)

type pendingWrite struct {
	kind  writeKind
	stamp subscriptiondomain.Stamp
	plan  plandomain.Plan
	usage subscriptiondomain.Usage
}

// syncer persists the writes of one state, one at a time. At most one write
// per kind waits in the queue: a newer write replaces an older one that has
// not started yet.
type syncer struct {
	accountID snowflake.ID
	store     subscriptiondomain.Store
	policy    *config.SyncPolicyHolder
	log       *zap.Logger
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[writeKind]pendingWrite
	highest  map[writeKind]int64
	inflight *pendingWrite
	closed   bool
	aborted  bool
}

func newSyncer(accountID snowflake.ID, store subscriptiondomain.Store, policy *config.SyncPolicyHolder, log *zap.Logger, m *metrics.Metrics) *syncer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &syncer{
		accountID: accountID,
		store:     store,
		policy:    policy,
		log:       log,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		pending:   make(map[writeKind]pendingWrite, 2),
		highest:   make(map[writeKind]int64, 2),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *syncer) enqueue(w pendingWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Warn("state closed, write dropped; local and stored values now differ",
			zap.String("kind", string(w.kind)),
			zap.Int64("version", w.stamp.Version),
		)
		s.metrics.RecordDroppedWrite(context.Background(), string(w.kind))
		return
	}
	if w.stamp.Version <= s.highest[w.kind] {
		return
	}
	s.highest[w.kind] = w.stamp.Version
	s.pending[w.kind] = w
	s.cond.Broadcast()
}

func (s *syncer) run() {
	defer close(s.done)
	for {
		w, ok := s.next()
		if !ok {
			return
		}
		s.write(w)

		s.mu.Lock()
		s.inflight = nil
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// next blocks until a write is queued. It returns false once the syncer is
// closed and drained, or aborted.
func (s *syncer) next() (pendingWrite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.aborted {
			return pendingWrite{}, false
		}
		for _, kind := range []writeKind{writePlan, writeUsage} {
			if w, ok := s.pending[kind]; ok {
				delete(s.pending, kind)
				s.inflight = &w
				return w, true
			}
		}
		if s.closed {
			return pendingWrite{}, false
		}
		s.cond.Wait()
	}
}

func (s *syncer) superseded(w pendingWrite) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highest[w.kind] > w.stamp.Version
}

func (s *syncer) write(w pendingWrite) {
	policy := s.policy.Get()
	log := s.log.With(
		zap.String("kind", string(w.kind)),
		zap.Int64("version", w.stamp.Version),
	)
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialBackoff
	b.MaxInterval = policy.MaxBackoff

	attempt := 0
	operation := func() (struct{}, error) {
		if s.superseded(w) {
			return struct{}{}, backoff.Permanent(errSuperseded)
		}
		attempt++

		ctx, cancel := context.WithTimeout(s.ctx, policy.SaveTimeout)
		defer cancel()

		err := s.save(ctx, w)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, subscriptiondomain.ErrStaleWrite),
			errors.Is(err, subscriptiondomain.ErrInvalidPlan),
			errors.Is(err, subscriptiondomain.ErrInvalidUsage),
			errors.Is(err, subscriptiondomain.ErrInvalidAccount):
			return struct{}{}, backoff.Permanent(err)
		}

		s.metrics.RecordStoreFailure(s.ctx, "save_"+string(w.kind), db.ErrorReason(err))
		log.Warn("save failed",
			zap.Int("attempt", attempt),
			zap.Uint("max_attempts", policy.MaxAttempts),
			zap.Error(err),
		)
		return struct{}{}, err
	}

	_, err := backoff.Retry(s.ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxAttempts),
		backoff.WithMaxElapsedTime(policy.MaxElapsedBackoff),
	)

	elapsed := time.Since(start)
	switch {
	case err == nil:
		s.metrics.ObserveWrite(s.ctx, string(w.kind), "ok", elapsed)
		log.Debug("write persisted", zap.Int("attempts", attempt))
	case errors.Is(err, errSuperseded):
		s.metrics.ObserveWrite(s.ctx, string(w.kind), "superseded", elapsed)
		log.Debug("write superseded by a newer local version", zap.Int("attempts", attempt))
	case errors.Is(err, subscriptiondomain.ErrStaleWrite):
		s.metrics.RecordStaleWrite(s.ctx, string(w.kind))
		s.metrics.ObserveWrite(s.ctx, string(w.kind), "stale", elapsed)
		log.Debug("store holds a newer version, write discarded")
	default:
		s.metrics.RecordDroppedWrite(context.Background(), string(w.kind))
		s.metrics.ObserveWrite(context.Background(), string(w.kind), "dropped", elapsed)
		log.Warn("write dropped after retries; local and stored values now differ until the next successful save",
			zap.Int("attempts", attempt),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
}

func (s *syncer) save(ctx context.Context, w pendingWrite) error {
	switch w.kind {
	case writePlan:
		return s.store.SavePlan(ctx, s.accountID, w.plan, w.stamp)
	default:
		return s.store.SaveUsage(ctx, s.accountID, w.usage, w.stamp)
	}
}

// flush waits until the queue is empty and no write is in flight.
func (s *syncer) flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 || s.inflight != nil {
		if s.aborted {
			return ErrStateClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

func (s *syncer) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	err := s.flush(ctx)
	if err != nil {
		s.mu.Lock()
		s.aborted = true
		abandoned := len(s.pending)
		s.cond.Broadcast()
		s.mu.Unlock()
		s.cancel()
		if abandoned > 0 {
			s.log.Warn("state closed with unsaved writes", zap.Int("abandoned", abandoned), zap.Error(err))
			s.metrics.RecordDroppedWrite(context.Background(), "close")
		}
	}

	<-s.done
	s.cancel()
	return err
}

func (s *syncer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
