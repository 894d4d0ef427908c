// Package sheets implements trip.Ledger on a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/JakeFAU/tripsync/internal/ledger"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultSheetName is used when neither the config nor the address names a sheet.
const DefaultSheetName = "Consultations"

const (
	valueInputRaw     = "RAW"
	insertRows        = "INSERT_ROWS"
	dimensionRows     = "ROWS"
	sheetPropertyMask = "sheets.properties"
)

// Config identifies the spreadsheet and how to authenticate.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	Endpoint        string
}

// Ledger reads and writes consultation rows.
type Ledger struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

// New builds a Ledger. Extra client options are appended after the ones derived
// from cfg so tests can point the client at a fake server.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Ledger, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("ledger.spreadsheet_id is required: %w", trip.ErrLedgerUnreachable)
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	name := cfg.SheetName
	if name == "" {
		name = DefaultSheetName
	}
	return &Ledger{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: name}, nil
}

// ListRows reads every data row below the header. Rows with an empty visitor
// id are skipped but keep their physical index.
func (l *Ledger) ListRows(ctx context.Context) ([]trip.ConsultationRecord, error) {
	firstRow := ledger.HeaderRows + 1
	rng := fmt.Sprintf("%s!%s%d:%s", quote(l.sheetName), ledger.FirstColumn, firstRow, ledger.LastColumn)
	resp, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, mapError("ledger list rows", err)
	}
	out := make([]trip.ConsultationRecord, 0, len(resp.Values))
	for i, row := range resp.Values {
		cells := toStrings(row)
		if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		addr := trip.RowAddress{SheetName: l.sheetName, RowIndex: firstRow + i}
		out = append(out, ledger.DecodeRow(cells, addr))
	}
	return out, nil
}

// AppendRow inserts rec as a new row and returns its address.
func (l *Ledger) AppendRow(ctx context.Context, rec trip.ConsultationRecord) (trip.RowAddress, error) {
	sheet := l.sheet(rec.SheetName)
	rng := fmt.Sprintf("%s!%s:%s", quote(sheet), ledger.FirstColumn, ledger.LastColumn)
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(ledger.EncodeRow(rec))}}
	resp, err := l.svc.Spreadsheets.Values.Append(l.spreadsheetID, rng, vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return trip.RowAddress{}, mapError("ledger append row", err)
	}
	if resp.Updates == nil {
		return trip.RowAddress{}, fmt.Errorf("ledger append row: response has no updated range")
	}
	row, err := ledger.ParseRowIndex(resp.Updates.UpdatedRange)
	if err != nil {
		return trip.RowAddress{}, fmt.Errorf("ledger append row: %w", err)
	}
	return trip.RowAddress{SheetName: sheet, RowIndex: row}, nil
}

// UpdateRow rewrites columns B..Q at addr. The row must still hold the same
// visitor id, otherwise the address has drifted and ErrRowNotFound is returned.
func (l *Ledger) UpdateRow(ctx context.Context, addr trip.RowAddress, rec trip.ConsultationRecord) error {
	sheet := l.sheet(addr.SheetName)
	current, err := l.visitorAt(ctx, sheet, addr.RowIndex)
	if err != nil {
		return err
	}
	if rec.VisitorID != "" && current != rec.VisitorID {
		return fmt.Errorf("row %d holds %q, not %q: %w", addr.RowIndex, current, rec.VisitorID, trip.ErrRowNotFound)
	}
	cells := ledger.EncodeRow(rec)[1:]
	rng := fmt.Sprintf("%s!%s%d:%s%d", quote(sheet), ledger.MutableColumn, addr.RowIndex, ledger.LastColumn, addr.RowIndex)
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(cells)}}
	if _, err := l.svc.Spreadsheets.Values.Update(l.spreadsheetID, rng, vr).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do(); err != nil {
		return mapError("ledger update row", err)
	}
	return nil
}

// UpdateRowStatus writes the automation status cell at addr.
func (l *Ledger) UpdateRowStatus(ctx context.Context, addr trip.RowAddress, status string) error {
	sheet := l.sheet(addr.SheetName)
	if _, err := l.visitorAt(ctx, sheet, addr.RowIndex); err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!%s%d", quote(sheet), ledger.StatusColumn, addr.RowIndex)
	vr := &sheets.ValueRange{Values: [][]interface{}{{status}}}
	if _, err := l.svc.Spreadsheets.Values.Update(l.spreadsheetID, rng, vr).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do(); err != nil {
		return mapError("ledger update status", err)
	}
	return nil
}

// DeleteRows removes the rows at addrs in one batch, bottom-up so earlier
// deletions don't shift later indexes. It returns the number of rows deleted.
func (l *Ledger) DeleteRows(ctx context.Context, addrs []trip.RowAddress) (int, error) {
	if len(addrs) == 0 {
		return 0, nil
	}
	sheetIDs, err := l.sheetIDs(ctx)
	if err != nil {
		return 0, err
	}

	type target struct {
		sheetID int64
		row     int
	}
	seen := make(map[target]struct{}, len(addrs))
	targets := make([]target, 0, len(addrs))
	for _, addr := range addrs {
		if addr.RowIndex <= ledger.HeaderRows {
			continue
		}
		id, ok := sheetIDs[l.sheet(addr.SheetName)]
		if !ok {
			continue
		}
		t := target{sheetID: id, row: addr.RowIndex}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return 0, nil
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].sheetID != targets[j].sheetID {
			return targets[i].sheetID < targets[j].sheetID
		}
		return targets[i].row > targets[j].row
	})

	requests := make([]*sheets.Request, 0, len(targets))
	for _, t := range targets {
		requests = append(requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         t.sheetID,
					Dimension:       dimensionRows,
					StartIndex:      int64(t.row - 1),
					EndIndex:        int64(t.row),
					ForceSendFields: []string{"SheetId"},
				},
			},
		})
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := l.svc.Spreadsheets.BatchUpdate(l.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return 0, mapError("ledger delete rows", err)
	}
	return len(requests), nil
}

func (l *Ledger) visitorAt(ctx context.Context, sheet string, row int) (string, error) {
	if row <= ledger.HeaderRows {
		return "", fmt.Errorf("row %d: %w", row, trip.ErrRowNotFound)
	}
	rng := fmt.Sprintf("%s!%s%d", quote(sheet), ledger.FirstColumn, row)
	resp, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", mapRowError("ledger read row", err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", fmt.Errorf("row %d: %w", row, trip.ErrRowNotFound)
	}
	visitor := strings.TrimSpace(fmt.Sprint(resp.Values[0][0]))
	if visitor == "" {
		return "", fmt.Errorf("row %d: %w", row, trip.ErrRowNotFound)
	}
	return visitor, nil
}

func (l *Ledger) sheetIDs(ctx context.Context) (map[string]int64, error) {
	resp, err := l.svc.Spreadsheets.Get(l.spreadsheetID).Fields(sheetPropertyMask).Context(ctx).Do()
	if err != nil {
		return nil, mapError("ledger sheet lookup", err)
	}
	ids := make(map[string]int64, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		ids[s.Properties.Title] = s.Properties.SheetId
	}
	return ids, nil
}

func (l *Ledger) sheet(name string) string {
	if name == "" {
		return l.sheetName
	}
	return name
}

// mapRowError is mapError for reads of a single addressed row, where 404 means
// the address no longer points at anything.
func mapRowError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, errors.Join(trip.ErrRowNotFound, err))
	}
	return mapError(op, err)
}

// mapError classifies Google API failures. Auth, quota and server errors mean
// the ledger is unusable right now, and so does a 404 for the spreadsheet or
// sheet itself.
func mapError(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, errors.Join(trip.ErrLedgerUnreachable, trip.Transient(err)))
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w", op, errors.Join(trip.ErrLedgerUnreachable, trip.Transient(err)))
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden || gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, errors.Join(trip.ErrLedgerUnreachable, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func toInterfaces(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}
