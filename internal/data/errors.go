package data

import apperrors "github.com/target/mmk-pipeline/internal/errors"

// Shared sentinel errors for data-layer repositories. They are AppErrors so callers
// outside this package can branch on apperrors.IsNotFound / IsConflict while
// errors.Is still matches the exact sentinel.
var (
	ErrReminderNotFound = apperrors.NotFound("reminder not found")
	// ErrReminderLocked is returned when a patch would move the schedule of a completed reminder.
	ErrReminderLocked = apperrors.Conflict("completed reminder cannot be reopened or rescheduled")

	ErrJobNotFound = apperrors.NotFound("job not found")
	// ErrJobNotClaimable is returned when a job is no longer pending at claim time.
	ErrJobNotClaimable = apperrors.Conflict("job is not pending")
	// ErrJobStateConflict is returned when a status update finds the job in an unexpected state.
	ErrJobStateConflict = apperrors.Conflict("job is not in the expected status")

	ErrAgentNotFound = apperrors.NotFound("agent not found")

	ErrCustomerNotFound = apperrors.NotFound("customer not found")
	// ErrStageConflict is returned when the customer's stage changed since it was read.
	ErrStageConflict = apperrors.Conflict("customer stage changed concurrently")
)
