/**
 * @description
 * This file defines the VerificationCase model: per-user identity-verification
 * progress reported by the external verification provider. The banking core only
 * reads the derived status to gate higher transfer limits; it does not implement
 * verification itself.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStepStatus is the provider-reported status of a single step.
type VerificationStepStatus string

const (
	VerificationStepPending    VerificationStepStatus = "pending"
	VerificationStepInProgress VerificationStepStatus = "in_progress"
	VerificationStepCompleted  VerificationStepStatus = "completed"
	VerificationStepFailed     VerificationStepStatus = "failed"
)

// VerificationStep is one ordered step within a case.
type VerificationStep struct {
	ID        string                 `json:"id"`
	Required  bool                   `json:"required"`
	Status    VerificationStepStatus `json:"status"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// VerificationCaseStatus is derived from the steps, never stored.
type VerificationCaseStatus string

const (
	VerificationNotStarted VerificationCaseStatus = "not_started"
	VerificationInProgress VerificationCaseStatus = "in_progress"
	VerificationCompleted  VerificationCaseStatus = "completed"
)

// VerificationCase groups a user's verification steps.
type VerificationCase struct {
	UserID uuid.UUID          `json:"user_id"`
	Steps  []VerificationStep `json:"steps"`
}

// Status derives the overall case status: completed iff every required step is
// completed; in_progress if any step has moved off pending; otherwise not_started.
func (c VerificationCase) Status() VerificationCaseStatus {
	if len(c.Steps) == 0 {
		return VerificationNotStarted
	}

	completed := true
	touched := false
	for _, step := range c.Steps {
		if step.Required && step.Status != VerificationStepCompleted {
			completed = false
		}
		if step.Status != VerificationStepPending {
			touched = true
		}
	}
	if completed {
		return VerificationCompleted
	}
	if touched {
		return VerificationInProgress
	}
	return VerificationNotStarted
}
