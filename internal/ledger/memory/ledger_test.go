package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tripsync/internal/trip"
)

func TestLedgerRowAddressing(t *testing.T) {
	t.Parallel()

	l := New()
	ctx := context.Background()
	for _, id := range []string{"v-1", "v-2", "v-3"} {
		_, err := l.AppendRow(ctx, trip.ConsultationRecord{VisitorID: id})
		require.NoError(t, err)
	}

	n, err := l.DeleteRows(ctx, []trip.RowAddress{{RowIndex: 2}, {RowIndex: 2}, {RowIndex: 40}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := l.ListRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "v-2", rows[0].VisitorID)
	require.Equal(t, 2, rows[0].RowIndex)

	// The row previously at 4 now lives at 3.
	err = l.UpdateRow(ctx, trip.RowAddress{RowIndex: 4}, trip.ConsultationRecord{VisitorID: "v-3"})
	require.ErrorIs(t, err, trip.ErrRowNotFound)
	require.NoError(t, l.UpdateRowStatus(ctx, trip.RowAddress{RowIndex: 3}, trip.AutomationStopped))

	rows, err = l.ListRows(ctx)
	require.NoError(t, err)
	require.Equal(t, trip.AutomationStopped, rows[1].AutomationStatus)
}

func TestLedgerUpdateRowKeepsVisitor(t *testing.T) {
	t.Parallel()

	l := New()
	ctx := context.Background()
	addr, err := l.AppendRow(ctx, trip.ConsultationRecord{VisitorID: "v-1"})
	require.NoError(t, err)

	err = l.UpdateRow(ctx, addr, trip.ConsultationRecord{VisitorID: "v-9"})
	require.ErrorIs(t, err, trip.ErrRowNotFound)

	require.NoError(t, l.UpdateRow(ctx, addr, trip.ConsultationRecord{Customer: trip.Customer{Name: "홍길동"}}))
	rows, err := l.ListRows(ctx)
	require.NoError(t, err)
	require.Equal(t, "v-1", rows[0].VisitorID)
	require.Equal(t, "홍길동", rows[0].Customer.Name)
}
