/**
 * @description
 * Sandbox data seeder. Populates a development database with owners, accounts
 * of every kind, and a spread of opening balances so the API has something to
 * serve locally. Never used by the running service.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/lumenbank/banking-service/internal/config"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

var accountKinds = []domain.AccountKind{
	domain.AccountKindChecking,
	domain.AccountKindSavings,
	domain.AccountKindBusiness,
	domain.AccountKindInvestment,
	domain.AccountKindCredit,
	domain.AccountKindFixed,
	domain.AccountKindMortgage,
}

func main() {
	var (
		owners          = flag.Int("owners", 25, "number of account owners to generate")
		accountsPer     = flag.Int("accounts-per-owner", 2, "accounts per owner")
		maxOpeningCents = flag.Int64("max-opening-cents", 500_000, "upper bound for opening balances in cents")
		seed            = flag.Int64("seed", time.Now().UnixNano(), "random seed for deterministic generation")
	)
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	dbpool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	repo := store.NewPostgresRepository(dbpool)
	rng := rand.New(rand.NewSource(*seed))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	created := 0
	for i := 0; i < *owners; i++ {
		ownerID := uuid.New()
		for j := 0; j < *accountsPer; j++ {
			kind := accountKinds[rng.Intn(len(accountKinds))]
			balance := rng.Int63n(*maxOpeningCents + 1)
			account := &domain.Account{
				ID:            uuid.New(),
				OwnerID:       ownerID,
				Kind:          kind,
				Balance:       balance,
				Status:        domain.AccountStatusActive,
				RoutingNumber: fmt.Sprintf("%09d", rng.Intn(1_000_000_000)),
				AccountNumber: fmt.Sprintf("%010d", rng.Int63n(10_000_000_000)),
			}
			if err := repo.CreateAccount(ctx, account); err != nil {
				log.Printf("level=error component=seed msg=\"account insert failed\" owner_id=%s err=%v", ownerID, err)
				continue
			}
			created++
		}
	}

	fmt.Fprintf(os.Stdout, "Seeded %d accounts for %d owners (seed %d)\n", created, *owners, *seed)
}
