// Package memory provides an in-process ledger that mimics spreadsheet row
// addressing, including index shifts after deletes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/tripsync/internal/ledger"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultSheetName names the single sheet this ledger models.
const DefaultSheetName = "Consultations"

// Ledger stores rows in order; row i of the slice is spreadsheet row i+2.
type Ledger struct {
	mu    sync.RWMutex
	sheet string
	rows  []trip.ConsultationRecord
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{sheet: DefaultSheetName}
}

func (l *Ledger) index(addr trip.RowAddress) (int, error) {
	if addr.SheetName != "" && addr.SheetName != l.sheet {
		return 0, fmt.Errorf("sheet %q: %w", addr.SheetName, trip.ErrRowNotFound)
	}
	i := addr.RowIndex - ledger.HeaderRows - 1
	if i < 0 || i >= len(l.rows) {
		return 0, fmt.Errorf("row %d: %w", addr.RowIndex, trip.ErrRowNotFound)
	}
	return i, nil
}

func (l *Ledger) address(i int) trip.RowAddress {
	return trip.RowAddress{SheetName: l.sheet, RowIndex: i + ledger.HeaderRows + 1}
}

// ListRows returns every row with its current address.
func (l *Ledger) ListRows(_ context.Context) ([]trip.ConsultationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]trip.ConsultationRecord, len(l.rows))
	for i, rec := range l.rows {
		addr := l.address(i)
		rec.RowIndex = addr.RowIndex
		rec.SheetName = addr.SheetName
		out[i] = rec
	}
	return out, nil
}

// AppendRow adds rec at the bottom.
func (l *Ledger) AppendRow(_ context.Context, rec trip.ConsultationRecord) (trip.RowAddress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, rec)
	return l.address(len(l.rows) - 1), nil
}

// UpdateRow replaces every column except the visitor id.
func (l *Ledger) UpdateRow(_ context.Context, addr trip.RowAddress, rec trip.ConsultationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, err := l.index(addr)
	if err != nil {
		return err
	}
	current := l.rows[i].VisitorID
	if rec.VisitorID != "" && rec.VisitorID != current {
		return fmt.Errorf("row %d holds %q, not %q: %w", addr.RowIndex, current, rec.VisitorID, trip.ErrRowNotFound)
	}
	rec.VisitorID = current
	l.rows[i] = rec
	return nil
}

// UpdateRowStatus sets the automation status at addr.
func (l *Ledger) UpdateRowStatus(_ context.Context, addr trip.RowAddress, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, err := l.index(addr)
	if err != nil {
		return err
	}
	l.rows[i].AutomationStatus = status
	return nil
}

// DeleteRows removes the addressed rows. Later rows shift up.
func (l *Ledger) DeleteRows(_ context.Context, addrs []trip.RowAddress) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[int]struct{}, len(addrs))
	idxs := make([]int, 0, len(addrs))
	for _, addr := range addrs {
		i, err := l.index(addr)
		if err != nil {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		idxs = append(idxs, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(idxs)))
	for _, i := range idxs {
		l.rows = append(l.rows[:i], l.rows[i+1:]...)
	}
	return len(idxs), nil
}
