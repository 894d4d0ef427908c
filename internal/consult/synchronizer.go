// Package consult reconciles conversation-extracted consultation records with
// the row-addressed ledger.
package consult

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultLedgerTimeout bounds each ledger call.
const DefaultLedgerTimeout = 15 * time.Second

// Operation names used for audit events and metrics.
const (
	OpPush    = "push"
	OpSync    = "sync"
	OpStatus  = "set_status"
	OpToggle  = "set_bot_enabled"
	OpCleanup = "cleanup"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeDegraded = "degraded"
)

var validStatuses = map[string]struct{}{
	trip.AutomationPending:   {},
	trip.AutomationActive:    {},
	trip.AutomationCompleted: {},
	trip.AutomationStopped:   {},
}

// ValidStatus reports whether status is a known automation status.
func ValidStatus(status string) bool {
	_, ok := validStatuses[status]
	return ok
}

// CleanupResult summarizes a cleanup run.
type CleanupResult struct {
	Deleted         int  `json:"deleted"`
	LedgerConfirmed bool `json:"ledger_confirmed"`
	Pruned          int  `json:"pruned"`
}

// Synchronizer pushes records to the ledger and mirrors bot toggles.
type Synchronizer struct {
	ledger        trip.Ledger
	sessions      trip.SessionStore
	toggles       trip.ToggleStore
	events        trip.EventLog
	clock         trip.Clock
	ledgerTimeout time.Duration
	logger        *zap.Logger
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithLedger sets the ledger. Without one, pushes fail and cleanup degrades to local.
func WithLedger(l trip.Ledger) Option {
	return func(s *Synchronizer) { s.ledger = l }
}

// WithEventLog sets the audit event log.
func WithEventLog(e trip.EventLog) Option {
	return func(s *Synchronizer) { s.events = e }
}

// WithLedgerTimeout overrides DefaultLedgerTimeout.
func WithLedgerTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.ledgerTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Synchronizer.
func New(sessions trip.SessionStore, toggles trip.ToggleStore, clock trip.Clock, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		sessions:      sessions,
		toggles:       toggles,
		clock:         clock,
		ledgerTimeout: DefaultLedgerTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("consult")
	return s
}

// LedgerConfigured reports whether a ledger is attached.
func (s *Synchronizer) LedgerConfigured() bool {
	return s.ledger != nil
}

// Stage stores a conversation-extracted record for a later Sync.
func (s *Synchronizer) Stage(ctx context.Context, rec trip.ConsultationRecord) error {
	if rec.VisitorID == "" {
		return ErrVisitorRequired
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.clock.Now()
	}
	if err := s.sessions.PutConsultation(ctx, rec); err != nil {
		return &SyncError{Op: "stage", Stage: StageSession, VisitorID: rec.VisitorID, Err: err}
	}
	return nil
}

// Push appends rec when its visitor has no ledger row and otherwise rewrites the
// existing row in place, leaving the visitor id column untouched.
func (s *Synchronizer) Push(ctx context.Context, rec trip.ConsultationRecord) (trip.RowAddress, error) {
	if rec.VisitorID == "" {
		return trip.RowAddress{}, ErrVisitorRequired
	}
	if s.ledger == nil {
		return trip.RowAddress{}, s.fail(ctx, OpPush, StageLedger, rec.VisitorID, trip.ErrLedgerUnreachable)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.clock.Now()
	}
	if rec.AutomationStatus == "" {
		rec.AutomationStatus = trip.AutomationPending
	}
	if enabled, err := s.toggles.BotEnabled(ctx, rec.VisitorID); err == nil {
		rec.IsBotEnabled = enabled
	} else if !errors.Is(err, trip.ErrNotFound) {
		s.logger.Warn("reading bot toggle failed; using record value",
			zap.String("visitor_id", rec.VisitorID),
			zap.Error(err),
		)
	}

	existing, found, err := s.find(ctx, rec.VisitorID)
	if err != nil {
		return trip.RowAddress{}, s.fail(ctx, OpPush, StageLedger, rec.VisitorID, err)
	}
	if !found {
		lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
		defer cancel()
		addr, err := s.ledger.AppendRow(lctx, rec)
		if err != nil {
			return trip.RowAddress{}, s.fail(ctx, OpPush, StageLedger, rec.VisitorID, err)
		}
		s.succeed(ctx, OpPush, rec.VisitorID, fmt.Sprintf("appended row %d", addr.RowIndex))
		return addr, nil
	}

	addr := existing.Address()
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	if err := s.ledger.UpdateRow(lctx, addr, rec); err != nil {
		return trip.RowAddress{}, s.fail(ctx, OpPush, StageLedger, rec.VisitorID, err)
	}
	s.succeed(ctx, OpPush, rec.VisitorID, fmt.Sprintf("updated row %d", addr.RowIndex))
	return addr, nil
}

// Sync pushes the staged record for visitorID.
func (s *Synchronizer) Sync(ctx context.Context, visitorID string) (trip.RowAddress, error) {
	rec, err := s.sessions.Consultation(ctx, visitorID)
	if err != nil {
		if errors.Is(err, trip.ErrNotFound) {
			return trip.RowAddress{}, fmt.Errorf("sync %s: %w", visitorID, err)
		}
		return trip.RowAddress{}, s.fail(ctx, OpSync, StageSession, visitorID, err)
	}
	return s.Push(ctx, rec)
}

// SetStatus writes status at addr. It fails with trip.ErrRowNotFound when the
// address no longer resolves.
func (s *Synchronizer) SetStatus(ctx context.Context, addr trip.RowAddress, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if addr.IsZero() {
		return fmt.Errorf("row %d: %w", addr.RowIndex, trip.ErrRowNotFound)
	}
	if s.ledger == nil {
		return s.fail(ctx, OpStatus, StageLedger, "", trip.ErrLedgerUnreachable)
	}
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	if err := s.ledger.UpdateRowStatus(lctx, addr, status); err != nil {
		return s.fail(ctx, OpStatus, StageLedger, "", err)
	}
	s.succeed(ctx, OpStatus, "", fmt.Sprintf("%s!%d=%s", addr.SheetName, addr.RowIndex, status))
	return nil
}

// SetBotEnabled upserts the flag by visitor id, then mirrors it to the
// visitor's ledger row when one exists. Mirror failures are logged only.
func (s *Synchronizer) SetBotEnabled(ctx context.Context, visitorID string, enabled bool) error {
	if visitorID == "" {
		return ErrVisitorRequired
	}
	if err := s.toggles.SetBotEnabled(ctx, visitorID, enabled); err != nil {
		return s.fail(ctx, OpToggle, StageToggle, visitorID, err)
	}
	detail := fmt.Sprintf("enabled=%t", enabled)
	if err := s.mirrorToggle(ctx, visitorID, enabled); err != nil {
		s.logger.Warn("mirroring bot toggle to ledger failed",
			zap.String("visitor_id", visitorID),
			zap.Error(err),
		)
		detail += " (ledger mirror skipped)"
	}
	s.succeed(ctx, OpToggle, visitorID, detail)
	return nil
}

func (s *Synchronizer) mirrorToggle(ctx context.Context, visitorID string, enabled bool) error {
	if s.ledger == nil {
		return trip.ErrLedgerUnreachable
	}
	existing, found, err := s.find(ctx, visitorID)
	if err != nil || !found {
		return err
	}
	if existing.IsBotEnabled == enabled {
		return nil
	}
	existing.IsBotEnabled = enabled
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	return s.ledger.UpdateRow(lctx, existing.Address(), existing)
}

// Cleanup deletes ledger rows of the given visitors and prunes their staged
// records. An unreachable or unconfigured ledger still yields success with
// zero confirmed deletions so callers can prune presentation state.
func (s *Synchronizer) Cleanup(ctx context.Context, visitorIDs []string) (CleanupResult, error) {
	var result CleanupResult
	ids := trip.UniqueStrings(visitorIDs)
	if len(ids) == 0 {
		return result, nil
	}

	pruned, err := s.sessions.DeleteConsultations(ctx, ids)
	if err != nil {
		s.logger.Warn("pruning staged consultations failed", zap.Error(err))
	}
	result.Pruned = pruned

	deleted, err := s.deleteLedgerRows(ctx, ids)
	if err != nil {
		s.logger.Warn("ledger cleanup degraded to local",
			zap.Int("candidates", len(ids)),
			zap.Error(err),
		)
		metrics.ObserveSync(OpCleanup, outcomeDegraded)
		s.record(ctx, trip.SyncEvent{Operation: OpCleanup, Outcome: outcomeDegraded, Detail: err.Error()})
		return result, nil
	}
	result.Deleted = deleted
	result.LedgerConfirmed = true
	s.succeed(ctx, OpCleanup, "", fmt.Sprintf("deleted %d of %d", deleted, len(ids)))
	return result, nil
}

func (s *Synchronizer) deleteLedgerRows(ctx context.Context, ids []string) (int, error) {
	if s.ledger == nil {
		return 0, trip.ErrLedgerUnreachable
	}
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	rows, err := s.ledger.ListRows(lctx)
	if err != nil {
		return 0, err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var addrs []trip.RowAddress
	for _, row := range rows {
		if _, ok := wanted[row.VisitorID]; ok {
			addrs = append(addrs, row.Address())
		}
	}
	if len(addrs) == 0 {
		return 0, nil
	}
	return s.ledger.DeleteRows(lctx, addrs)
}

// find looks the visitor up by its logical key. The first matching row wins.
func (s *Synchronizer) find(ctx context.Context, visitorID string) (trip.ConsultationRecord, bool, error) {
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	rows, err := s.ledger.ListRows(lctx)
	if err != nil {
		return trip.ConsultationRecord{}, false, err
	}
	for _, row := range rows {
		if row.VisitorID == visitorID {
			return row, true, nil
		}
	}
	return trip.ConsultationRecord{}, false, nil
}

func (s *Synchronizer) fail(ctx context.Context, op, stage, visitorID string, err error) error {
	metrics.ObserveSync(op, outcomeError)
	s.logger.Error("sync operation failed",
		zap.String("op", op),
		zap.String("stage", stage),
		zap.String("visitor_id", visitorID),
		zap.Error(err),
	)
	s.record(ctx, trip.SyncEvent{VisitorID: visitorID, Operation: op, Outcome: outcomeError, Detail: err.Error()})
	return &SyncError{Op: op, Stage: stage, VisitorID: visitorID, Err: err}
}

func (s *Synchronizer) succeed(ctx context.Context, op, visitorID, detail string) {
	metrics.ObserveSync(op, outcomeOK)
	s.logger.Debug("sync operation done",
		zap.String("op", op),
		zap.String("visitor_id", visitorID),
		zap.String("detail", detail),
	)
	s.record(ctx, trip.SyncEvent{VisitorID: visitorID, Operation: op, Outcome: outcomeOK, Detail: detail})
}

func (s *Synchronizer) record(ctx context.Context, event trip.SyncEvent) {
	if s.events == nil {
		return
	}
	event.At = s.clock.Now()
	// Audit writes must not outlive or fail the operation they describe.
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ledgerTimeout)
	defer cancel()
	if err := s.events.RecordEvent(ectx, event); err != nil {
		s.logger.Warn("recording sync event failed",
			zap.String("op", event.Operation),
			zap.Error(err),
		)
	}
}
