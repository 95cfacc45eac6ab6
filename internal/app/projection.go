/**
 * @description
 * This file contains the Redis-backed read projection for account balances.
 * The ledger store stays authoritative; the projection is a bounded-staleness
 * cache in front of it, refreshed on demand and invalidated by the engine
 * after every balance change. Redis being down degrades reads to the store,
 * never to an error.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: The cache client.
 * - internal/domain, internal/store: Domain models and the authoritative store.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

const balanceKeyPrefix = "projection:balance:"

// Projection serves balance reads from Redis with the ledger store as the
// source of truth.
type Projection struct {
	client *redis.Client
	repo   store.Repository
	ttl    time.Duration
}

// NewProjection creates a balance projection. ttl bounds how stale a cached
// balance may get if an invalidation is lost.
func NewProjection(client *redis.Client, repo store.Repository, ttl time.Duration) *Projection {
	return &Projection{client: client, repo: repo, ttl: ttl}
}

// Balance returns the account's available balance, cached when possible.
func (p *Projection) Balance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error) {
	key := balanceKeyPrefix + accountID.String()

	if p.client != nil {
		cached, err := p.client.Get(ctx, key).Bytes()
		if err == nil {
			var view domain.AccountBalance
			if jsonErr := json.Unmarshal(cached, &view); jsonErr == nil {
				return &view, nil
			}
			// Unreadable entry: drop it and fall through to the store.
			p.client.Del(ctx, key)
		} else if err != redis.Nil {
			log.Printf("level=warn component=projection msg=\"cache read failed; serving from store\" account_id=%s err=%v", accountID, err)
		}
	}

	balance, err := p.repo.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	view := &domain.AccountBalance{
		AccountID:        accountID,
		AvailableBalance: balance,
		AsOf:             time.Now().UTC(),
	}

	if p.client != nil {
		if encoded, jsonErr := json.Marshal(view); jsonErr == nil {
			if setErr := p.client.Set(ctx, key, encoded, p.ttl).Err(); setErr != nil {
				log.Printf("level=warn component=projection msg=\"cache write failed\" account_id=%s err=%v", accountID, setErr)
			}
		}
	}
	return view, nil
}

// Invalidate drops cached balances for the given accounts. Called by the
// engine after a committed movement; failures only extend staleness up to the
// TTL, so they are logged and swallowed.
func (p *Projection) Invalidate(ctx context.Context, accountIDs ...uuid.UUID) {
	if p.client == nil || len(accountIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, balanceKeyPrefix+id.String())
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("level=warn component=projection msg=\"cache invalidation failed\" keys=%d err=%v", len(keys), err)
	}
}
