package service

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/bizdash/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type RegistryParams struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Config    config.Config
	Log       *zap.Logger
	Service   *Service
}

// Registry keeps one open State per recently active account. Concurrent
// requests for the same account share a single load, and states idle past
// the TTL are flushed and closed in the background.
type Registry struct {
	svc           *Service
	log           *zap.Logger
	cache         *expirable.LRU[snowflake.ID, *State]
	group         singleflight.Group
	degradedRetry time.Duration

	closing sync.WaitGroup
}

func NewRegistry(p RegistryParams) *Registry {
	size := p.Config.RegistrySize
	if size <= 0 {
		size = 10_000
	}
	ttl := p.Config.RegistryTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	degradedRetry := p.Config.RegistryDegradedRetry
	if degradedRetry <= 0 {
		degradedRetry = 5 * time.Second
	}

	r := &Registry{
		svc:           p.Service,
		log:           p.Log.Named("entitlement.registry"),
		degradedRetry: degradedRetry,
	}
	r.cache = expirable.NewLRU[snowflake.ID, *State](size, r.onEvict, ttl)

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: r.Close,
		})
	}
	return r
}

// Get returns the live state of accountID, opening it on first use. A state
// opened on defaults after a failed load is replaced by a fresh load once
// RegistryDegradedRetry has passed.
func (r *Registry) Get(ctx context.Context, accountID snowflake.ID) *State {
	if state, ok := r.lookup(accountID); ok {
		return state
	}

	v, _, _ := r.group.Do(accountID.String(), func() (any, error) {
		if state, ok := r.lookup(accountID); ok {
			return state, nil
		}
		// shared by every waiter, detached from the first caller's deadline
		ctx := context.WithoutCancel(ctx)
		if stale, ok := r.cache.Peek(accountID); ok && !stale.Closed() {
			r.retire(ctx, accountID, stale)
		}
		state := r.svc.Open(ctx, accountID)
		r.cache.Add(accountID, state)
		return state, nil
	})
	return v.(*State)
}

// lookup returns a cached, still open and usable state and refreshes its TTL.
func (r *Registry) lookup(accountID snowflake.ID) (*State, bool) {
	state, ok := r.cache.Get(accountID)
	if !ok || state.Closed() || r.retryDue(state) {
		return nil, false
	}
	r.cache.Add(accountID, state)
	return state, true
}

func (r *Registry) retryDue(state *State) bool {
	return state.Degraded() && r.svc.clock.Now().Sub(state.openedAt) >= r.degradedRetry
}

// retire closes a degraded state before its replacement loads, so the load
// sees every write the old session managed to persist.
func (r *Registry) retire(ctx context.Context, accountID snowflake.ID, state *State) {
	closeCtx, cancel := context.WithTimeout(ctx, r.svc.closeTimeout())
	defer cancel()
	if err := state.Close(closeCtx); err != nil {
		r.log.Warn("close degraded state failed",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
	}
	r.log.Info("reloading account after degraded open",
		zap.String("account_id", accountID.String()),
		zap.String("session_id", state.SessionID()),
	)
}

// Len reports the number of cached states.
func (r *Registry) Len() int {
	return r.cache.Len()
}

func (r *Registry) onEvict(accountID snowflake.ID, state *State) {
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.svc.closeTimeout())
		defer cancel()
		if err := state.Close(ctx); err != nil {
			r.log.Warn("close evicted state failed",
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Close evicts every state and waits for their writers to finish.
func (r *Registry) Close(ctx context.Context) error {
	r.cache.Purge()

	done := make(chan struct{})
	go func() {
		r.closing.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
