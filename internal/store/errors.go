/**
 * @description
 * Sentinel errors shared by every Repository implementation. API handlers map
 * these onto HTTP statuses; the engine uses them to decide between rejection
 * and transient-retry paths.
 */

package store

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotActive    = errors.New("account is not active")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrMovementNotFound    = errors.New("movement not found")
	ErrMovementNotSettling = errors.New("movement is not pending settlement")
	ErrCardNotFound        = errors.New("card not found")
	ErrCardNotActive       = errors.New("card is not active")
)
