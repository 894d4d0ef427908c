package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/config"
	"github.com/JakeFAU/tripsync/internal/consult"
	"github.com/JakeFAU/tripsync/internal/extract"
	"github.com/JakeFAU/tripsync/internal/service"
	"github.com/JakeFAU/tripsync/internal/trip"
)

type fakeService struct {
	err       error
	docs      map[string]trip.ConfirmationDocument
	lastInput extract.Input
	lastPatch trip.DocumentPatch
	lastAddr  trip.RowAddress
	lastIDs   []string
	staged    trip.ConsultationRecord
	toggled   map[string]bool
	panicOn   string
}

func newFakeService() *fakeService {
	return &fakeService{
		docs:    map[string]trip.ConfirmationDocument{"doc-1": {ID: "doc-1", Title: "다낭 3박5일"}},
		toggled: map[string]bool{},
	}
}

func (f *fakeService) FetchContent(_ context.Context, url string) (service.FetchedContent, error) {
	if f.err != nil {
		return service.FetchedContent{}, f.err
	}
	return service.FetchedContent{URL: url, FetchedVia: trip.FetchDirect, PlainText: "판매가 949,000원"}, nil
}

func (f *fakeService) FetchAndAnalyze(_ context.Context, url string) (trip.ConfirmationDocument, error) {
	if url == f.panicOn {
		panic("boom")
	}
	if f.err != nil {
		return trip.ConfirmationDocument{}, f.err
	}
	return trip.ConfirmationDocument{ID: "doc-2", URL: url, Title: "다낭 3박5일"}, nil
}

func (f *fakeService) AnalyzeProvided(_ context.Context, in extract.Input) (trip.ConfirmationDocument, error) {
	f.lastInput = in
	if f.err != nil {
		return trip.ConfirmationDocument{}, f.err
	}
	return trip.ConfirmationDocument{ID: "doc-3", URL: in.URL, Title: "세부"}, nil
}

func (f *fakeService) GetDocument(_ context.Context, id string) (trip.ConfirmationDocument, error) {
	doc, ok := f.docs[id]
	if !ok {
		return trip.ConfirmationDocument{}, fmt.Errorf("get document: %w", trip.ErrNotFound)
	}
	return doc, nil
}

func (f *fakeService) UpdateDocument(_ context.Context, id string, patch trip.DocumentPatch) (trip.ConfirmationDocument, error) {
	f.lastPatch = patch
	doc, ok := f.docs[id]
	if !ok {
		return trip.ConfirmationDocument{}, fmt.Errorf("update document: %w", trip.ErrNotFound)
	}
	return doc.Apply(patch, time.Now()), nil
}

func (f *fakeService) StageConsultation(_ context.Context, rec trip.ConsultationRecord) error {
	f.staged = rec
	return f.err
}

func (f *fakeService) SyncConsultation(_ context.Context, visitorID string) (trip.RowAddress, error) {
	if f.err != nil {
		return trip.RowAddress{}, f.err
	}
	return trip.RowAddress{SheetName: "Consultations", RowIndex: 2}, nil
}

func (f *fakeService) SetRowStatus(_ context.Context, addr trip.RowAddress, _ string) error {
	f.lastAddr = addr
	return f.err
}

func (f *fakeService) ToggleBot(_ context.Context, visitorID string, enabled bool) error {
	f.toggled[visitorID] = enabled
	return f.err
}

func (f *fakeService) CleanupStale(_ context.Context, ids []string) (consult.CleanupResult, error) {
	f.lastIDs = ids
	return consult.CleanupResult{Deleted: len(ids), LedgerConfirmed: true, Pruned: len(ids)}, f.err
}

func (f *fakeService) GetRate(_ context.Context, from, to string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 1350.5, nil
}

func newTestServer(svc Service, opts ...Option) *Server {
	return NewServer(svc, config.Config{}, zap.NewNop(), opts...)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeService())
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestServer_ReadyzReportsProbeFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeService(), WithReadiness(func(context.Context) error {
		return errors.New("redis down")
	}))
	rec := do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_AnalyzeURL(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeService())
	rec := do(t, s, http.MethodPost, "/v1/confirmations/analyze", `{"url":"https://tour.example.com/p/1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"doc-2"`)
}

func TestServer_AnalyzeURLValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeService())

	rec := do(t, s, http.MethodPost, "/v1/confirmations/analyze", `{invalid`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/confirmations/analyze", `{"url":"not a url"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "URL")
}

func TestServer_AnalyzeProvided(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	s := newTestServer(svc)
	rec := do(t, s, http.MethodPost, "/v1/confirmations/analyze-provided",
		`{"url":"https://x.example.com","text":"세부 4박5일","page_title":"세부"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "세부 4박5일", svc.lastInput.Text)
	require.Equal(t, "세부", svc.lastInput.PageTitle)

	rec = do(t, s, http.MethodPost, "/v1/confirmations/analyze-provided", `{"url":"https://x.example.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_FetchPage(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeService())
	rec := do(t, s, http.MethodPost, "/v1/pages/fetch", `{"url":"https://tour.example.com/p/1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"fetched_via":"direct"`)
	require.Contains(t, rec.Body.String(), "949,000")
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"fetch failure", &trip.FetchError{URL: "u", Cause: context.DeadlineExceeded}, http.StatusUnprocessableEntity, "could not extract information from this page"},
		{"empty", fmt.Errorf("analyze: %w", trip.ErrExtractionEmpty), http.StatusUnprocessableEntity, "could not extract information from this page"},
		{"upstream", fmt.Errorf("summarize: %w", trip.ErrUpstreamUnavailable), http.StatusServiceUnavailable, "upstream service unavailable"},
		{"sync", &consult.SyncError{Op: "push", Stage: consult.StageLedger, Err: trip.ErrLedgerUnreachable}, http.StatusBadGateway, `"stage":"ledger"`},
		{"row moved", &consult.SyncError{Op: "set_status", Stage: consult.StageLedger, Err: trip.ErrRowNotFound}, http.StatusConflict, "ledger row"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := newFakeService()
			svc.err = tc.err
			s := newTestServer(svc)
			rec := do(t, s, http.MethodPost, "/v1/confirmations/analyze", `{"url":"https://tour.example.com/p/1"}`)
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestServer_GetAndPatchConfirmation(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	s := newTestServer(svc)

	rec := do(t, s, http.MethodGet, "/v1/confirmations/doc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "다낭 3박5일")

	rec = do(t, s, http.MethodGet, "/v1/confirmations/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPatch, "/v1/confirmations/doc-1", `{"id":"evil","trip":{"hotel":"샹그릴라"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"doc-1"`)
	require.Contains(t, rec.Body.String(), "샹그릴라")
	require.NotNil(t, svc.lastPatch.Trip)

	rec = do(t, s, http.MethodPatch, "/v1/confirmations/missing", `{"title":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ConsultationRoutes(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	s := newTestServer(svc)

	rec := do(t, s, http.MethodPut, "/v1/consultations/v-1", `{"customer":{"name":"홍길동"},"automation_status":"pending"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "v-1", svc.staged.VisitorID)
	require.Equal(t, "홍길동", svc.staged.Customer.Name)

	rec = do(t, s, http.MethodPut, "/v1/consultations/v-1", `{"automation_status":"later"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/consultations/v-1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"row_index":2`)

	rec = do(t, s, http.MethodPut, "/v1/consultations/v-1/bot", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	enabled, ok := svc.toggled["v-1"]
	require.True(t, ok)
	require.False(t, enabled)

	rec = do(t, s, http.MethodPut, "/v1/consultations/v-1/bot", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/consultations/cleanup", `{"visitor_ids":["a","b"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"a", "b"}, svc.lastIDs)
	require.Contains(t, rec.Body.String(), `"ledger_confirmed":true`)

	rec = do(t, s, http.MethodPost, "/v1/consultations/cleanup", `{"visitor_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SetRowStatus(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	s := newTestServer(svc)

	rec := do(t, s, http.MethodPut, "/v1/ledger/Consultations/rows/7/status", `{"status":"active"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, trip.RowAddress{SheetName: "Consultations", RowIndex: 7}, svc.lastAddr)

	rec = do(t, s, http.MethodPut, "/v1/ledger/Consultations/rows/zero/status", `{"status":"active"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/v1/ledger/Consultations/rows/7/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetRate(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	s := newTestServer(svc)

	rec := do(t, s, http.MethodGet, "/v1/rates?from=USD&to=KRW", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"rate":1350.5`)

	rec = do(t, s, http.MethodGet, "/v1/rates?from=US", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = fmt.Errorf("rates: %w", trip.ErrUpstreamUnavailable)
	rec = do(t, s, http.MethodGet, "/v1/rates?from=USD&to=KRW", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.panicOn = "https://panic.example.com"
	s := newTestServer(svc)
	rec := do(t, s, http.MethodPost, "/v1/confirmations/analyze", `{"url":"https://panic.example.com"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	s := NewServer(newFakeService(), cfg, zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/confirmations/doc-1", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/confirmations/doc-1", nil)
	req.Header.Set("X-API-Key", "secret")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)

	health := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, health.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeService())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "0190c3a2-7d1e-7b3e-9c2a-3f4e5d6c7b8a")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "0190c3a2-7d1e-7b3e-9c2a-3f4e5d6c7b8a", rec.Header().Get(RequestIDHeader))
}
