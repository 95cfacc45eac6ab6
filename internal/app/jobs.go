/**
 * @description
 * This file contains the settlement sweeper: a cron-driven job that completes
 * external movements once their settlement delay has elapsed, and escalates
 * movements stuck in pending_settlement past the stale deadline to the back
 * office.
 *
 * @dependencies
 * - context, log, sync, time: Standard Go libraries.
 * - github.com/robfig/cron/v3: The job scheduler.
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

// StaleTimeout is how long an external movement may sit in pending_settlement
// before the sweeper raises a settlement_stuck alert.
const StaleTimeout = 24 * time.Hour

const sweepBatchSize = 100

// Sweeper finalizes external movements whose settlement window has elapsed.
type Sweeper struct {
	engine          *Engine
	repo            store.Repository
	settlementDelay time.Duration

	mu      sync.Mutex
	alerted map[uuid.UUID]struct{} // movements already escalated as stuck
}

// NewSweeper creates a settlement sweeper. settlementDelay simulates the
// external rail's clearing time.
func NewSweeper(engine *Engine, repo store.Repository, settlementDelay time.Duration) *Sweeper {
	return &Sweeper{
		engine:          engine,
		repo:            repo,
		settlementDelay: settlementDelay,
		alerted:         make(map[uuid.UUID]struct{}),
	}
}

// Run performs one sweep. Each movement settles independently; one failure
// does not stop the batch.
func (s *Sweeper) Run(ctx context.Context) {
	pending, err := s.repo.FindMovementsPendingSettlement(ctx, s.settlementDelay, sweepBatchSize)
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"pending settlement query failed\" err=%v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	log.Printf("level=info component=sweeper msg=\"sweep started\" pending=%d", len(pending))

	settled := 0
	for i := range pending {
		movement := &pending[i]
		if _, err := s.engine.Settle(ctx, movement.ID); err != nil {
			log.Printf("level=warn component=sweeper msg=\"settlement failed\" movement_id=%s err=%v", movement.ID, err)
			s.escalateIfStale(ctx, movement, err)
			continue
		}
		settled++
	}
	log.Printf("level=info component=sweeper msg=\"sweep finished\" pending=%d settled=%d", len(pending), settled)
}

// escalateIfStale raises a settlement_stuck alert for a movement that still
// cannot settle past the stale deadline. Each movement is escalated at most
// once per process lifetime; alerts are append-only and re-raising every sweep
// would bury the back office.
func (s *Sweeper) escalateIfStale(ctx context.Context, movement *domain.Movement, cause error) {
	if time.Since(movement.CreatedAt) < StaleTimeout {
		return
	}
	s.mu.Lock()
	_, seen := s.alerted[movement.ID]
	if !seen {
		s.alerted[movement.ID] = struct{}{}
	}
	s.mu.Unlock()
	if seen {
		return
	}

	alert := &domain.OperatorAlert{
		ID:         uuid.New(),
		Kind:       domain.AlertSettlementStuck,
		MovementID: &movement.ID,
		Detail:     fmt.Sprintf("movement pending settlement since %s: %v", movement.CreatedAt.UTC().Format(time.RFC3339), cause),
	}
	if err := s.repo.CreateOperatorAlert(ctx, alert); err != nil {
		log.Printf("level=error component=sweeper msg=\"operator alert write failed\" movement_id=%s err=%v", movement.ID, err)
	}
}

// StartScheduler registers the sweeper on the given cron schedule and starts
// the scheduler. The caller owns Stop on shutdown.
func StartScheduler(sweeper *Sweeper, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		sweeper.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("register settlement sweep: %w", err)
	}
	c.Start()
	log.Printf("level=info component=sweeper msg=\"scheduler started\" schedule=%q", schedule)
	return c, nil
}
