/**
 * @description
 * This file defines the Account model, the single balance-holding entity in the
 * ledger. Accounts are created at account opening and are never deleted; closing
 * an account is a status transition.
 *
 * @notes
 * - Balances are stored as `int64` in the smallest currency unit (cents) to avoid
 *   floating-point inaccuracies with financial data.
 * - Account.Balance is mutated exclusively by the transfer engine's apply path;
 *   no other component writes it.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountKind identifies the product type of an account. Overdraft policy is
// decided per kind, not globally.
type AccountKind string

const (
	AccountKindChecking   AccountKind = "checking"
	AccountKindSavings    AccountKind = "savings"
	AccountKindBusiness   AccountKind = "business"
	AccountKindInvestment AccountKind = "investment"
	AccountKindCredit     AccountKind = "credit"
	AccountKindFixed      AccountKind = "fixed"
	AccountKindMortgage   AccountKind = "mortgage"
)

// AllowsOverdraft reports whether the account kind may carry a negative balance.
// Credit lines and mortgages are the only kinds that do.
func (k AccountKind) AllowsOverdraft() bool {
	return k == AccountKindCredit || k == AccountKindMortgage
}

// Valid reports whether the kind is one of the known account kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountKindChecking, AccountKindSavings, AccountKindBusiness,
		AccountKindInvestment, AccountKindCredit, AccountKindFixed, AccountKindMortgage:
		return true
	}
	return false
}

// AccountStatus is the lifecycle status of an account. Only active accounts
// participate in movements.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusHold   AccountStatus = "hold"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// Account maps to the `accounts` table.
type Account struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       uuid.UUID     `json:"owner_id"`
	Kind          AccountKind   `json:"kind"`
	Balance       int64         `json:"balance"` // in cents
	Status        AccountStatus `json:"status"`
	RoutingNumber string        `json:"routing_number"`
	AccountNumber string        `json:"account_number"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AccountBalance is the read-projection view of an account's funds.
type AccountBalance struct {
	AccountID        uuid.UUID `json:"account_id"`
	AvailableBalance int64     `json:"available_balance"` // in cents
	AsOf             time.Time `json:"as_of"`
}
