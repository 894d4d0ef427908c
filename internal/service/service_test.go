package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tripsync/internal/consult"
	"github.com/JakeFAU/tripsync/internal/extract"
	ledgermem "github.com/JakeFAU/tripsync/internal/ledger/memory"
	"github.com/JakeFAU/tripsync/internal/store/memory"
	"github.com/JakeFAU/tripsync/internal/trip"
)

const pageMarkup = `<html><head><title>다낭 3박5일 | 투어몰</title><script>var x = 1;</script></head>
<body><h1>상품명: 다낭 3박5일 자유여행</h1>
<p>판매가 949,000원</p>
<p>포함사항: 왕복항공권, 숙박 불포함사항: 개인경비</p></body></html>`

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("doc-%d", s.n), nil
}

type stubFetcher struct{}

func (stubFetcher) FetchPage(_ context.Context, url string, _ time.Duration) (trip.RawPage, error) {
	return trip.RawPage{URL: url, Markup: pageMarkup, FetchedVia: trip.FetchDirect, StatusCode: 200}, nil
}

type stubRates struct{}

func (stubRates) GetRate(_ context.Context, from, to string) (float64, error) {
	if from == "USD" && to == "KRW" {
		return 1350, nil
	}
	return 0, trip.ErrNotFound
}

func newService(t *testing.T) (*Service, *ledgermem.Ledger) {
	t.Helper()
	clock := fixedClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	ledger := ledgermem.New()
	sync := consult.New(memory.NewSessionStore(), memory.NewToggleStore(), clock, consult.WithLedger(ledger))
	return New(Deps{
		Analyzer:     extract.NewAnalyzer(stubFetcher{}),
		Documents:    memory.NewDocumentStore(clock),
		Synchronizer: sync,
		Rates:        stubRates{},
		IDs:          &seqIDs{},
		Clock:        clock,
	}), ledger
}

func TestFetchAndAnalyzeStoresDocument(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	doc, err := svc.FetchAndAnalyze(ctx, "https://tour.example.com/p/1")
	require.NoError(t, err)
	require.Equal(t, "doc-1", doc.ID)
	require.Equal(t, "다낭", doc.Destination)
	require.EqualValues(t, 949000, doc.Trip.PriceAmount)
	require.Equal(t, []string{"왕복항공권", "숙박"}, doc.Trip.Inclusions)
	require.False(t, doc.CreatedAt.IsZero())

	stored, err := svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc, stored)
}

func TestUpdateDocumentKeepsIdentity(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	doc, err := svc.AnalyzeProvided(ctx, extract.Input{Text: "상품명: 세부 4박5일 가격 문의", URL: "https://x.example.com"})
	require.NoError(t, err)

	hotel := "샹그릴라"
	spoof := "evil"
	updated, err := svc.UpdateDocument(ctx, doc.ID, trip.DocumentPatch{ID: &spoof, Trip: &trip.TripPatch{Hotel: &hotel}})
	require.NoError(t, err)
	require.Equal(t, doc.ID, updated.ID)
	require.Equal(t, doc.CreatedAt, updated.CreatedAt)
	require.Equal(t, hotel, updated.Trip.Hotel)
	require.Equal(t, doc.Title, updated.Title)

	_, err = svc.UpdateDocument(ctx, "missing", trip.DocumentPatch{Trip: &trip.TripPatch{Hotel: &hotel}})
	require.ErrorIs(t, err, trip.ErrNotFound)
	_, err = svc.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, trip.ErrNotFound)
}

func TestAnalyzeProvidedEmpty(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.AnalyzeProvided(context.Background(), extract.Input{Text: "로그인 회원가입", URL: "https://x.example.com"})
	require.ErrorIs(t, err, trip.ErrExtractionEmpty)
}

func TestFetchContent(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	got, err := svc.FetchContent(context.Background(), "https://tour.example.com/p/1")
	require.NoError(t, err)
	require.Equal(t, trip.FetchDirect, got.FetchedVia)
	require.Contains(t, got.PlainText, "판매가 949,000원")
	require.NotContains(t, got.PlainText, "var x")
	require.Equal(t, "다낭 3박5일 | 투어몰", got.PageTitle)
}

func TestConsultationFlow(t *testing.T) {
	t.Parallel()

	svc, ledger := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.StageConsultation(ctx, trip.ConsultationRecord{
		VisitorID: "v-1",
		Customer:  trip.Customer{Name: "홍길동"},
	}))
	addr, err := svc.SyncConsultation(ctx, "v-1")
	require.NoError(t, err)
	require.NoError(t, svc.SetRowStatus(ctx, addr, trip.AutomationActive))
	require.NoError(t, svc.ToggleBot(ctx, "v-1", true))

	rows, err := ledger.ListRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, trip.AutomationActive, rows[0].AutomationStatus)
	require.True(t, rows[0].IsBotEnabled)

	res, err := svc.CleanupStale(ctx, []string{"v-1"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Deleted)
}

func TestGetRate(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	rate, err := svc.GetRate(context.Background(), "USD", "KRW")
	require.NoError(t, err)
	require.InDelta(t, 1350, rate, 0)
}
