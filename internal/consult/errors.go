package consult

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// Sync stages reported in SyncError.
const (
	StageSession = "session"
	StageLedger  = "ledger"
	StageToggle  = "toggle"
)

var (
	// ErrVisitorRequired rejects operations without a visitor id.
	ErrVisitorRequired = errors.New("visitor id is required")
	// ErrInvalidStatus rejects automation statuses outside the known set.
	ErrInvalidStatus = errors.New("unknown automation status")
)

// SyncError reports which stage of a synchronizer operation failed. It is
// distinct from extraction failures so operators can tell them apart.
type SyncError struct {
	Op        string
	Stage     string
	VisitorID string
	Err       error
}

func (e *SyncError) Error() string {
	if e.VisitorID == "" {
		return fmt.Sprintf("%s failed at %s stage: %v", e.Op, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s failed at %s stage: %v", e.Op, e.VisitorID, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure was a timeout or transient outage.
func (e *SyncError) Retryable() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) ||
		errors.Is(e.Err, trip.ErrLedgerUnreachable) ||
		trip.IsTransient(e.Err)
}
