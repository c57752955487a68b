package prize

import (
	"fmt"
	"strconv"

	"smallbiznis-gamification/pkg/errutil"
)

const msgInvalidTransition = "invalid entitlement transition"

var (
	ErrInvalidTransition = errutil.Conflict(msgInvalidTransition, nil)
	ErrReasonRequired    = errutil.BadRequest("reason is required", nil)
	ErrNotFound          = errutil.NotFound("entitlement not found", nil)
	ErrRankingClosed     = errutil.Conflict("campaign ranking is closed", nil)
	ErrPrizesLocked      = errutil.Conflict("campaign prizes already have entitlements", nil)
)

// transitions lists the legal moves of the entitlement state machine.
// failed -> executing is a retry and opens a new attempt.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusExecuting},
	StatusExecuting: {StatusCompleted, StatusFailed},
	StatusFailed:    {StatusExecuting},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports a move the state machine refused. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	EntitlementID int64
	From          Status
	To            Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("entitlement %d cannot move from %s to %s", e.EntitlementID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return errutil.Conflict(msgInvalidTransition, nil, errutil.WithDetails(errutil.Detail{
		Field:   "status",
		Message: fmt.Sprintf("cannot move from %s to %s", e.From, e.To),
	}))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
