package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tripsync/internal/trip"
)

const confirmationText = "[예약확인서] 상품명: 다낭 3박5일 자유여행 출발일 2024.05.01(수) ~ 05.05(일) " +
	"판매가 949,000원 포함사항: 왕복항공권, 숙박, 여행자보험 불포함사항: 개인경비 / 가이드팁 " +
	"상품 POINT ▶ 바나힐 투어 ▶ 호이안 야경 식사: 조식 3회, 석식 1회 호텔: 하얏트 리젠시 다낭 " +
	"예약자: 홍길동 010 1234 5678 인원 성인 2명 아동 1명 유의사항 여권 유효기간 6개월"

func TestFromTextSections(t *testing.T) {
	t.Parallel()

	got := FromText("포함사항: 왕복항공권, 숙박 불포함사항: 개인경비")
	require.Equal(t, SourcePattern, got.Source)
	require.Equal(t, []string{"왕복항공권", "숙박"}, got.Fields.Inclusions)
	require.Equal(t, []string{"개인경비"}, got.Fields.Exclusions)
}

func TestFromTextFullConfirmation(t *testing.T) {
	t.Parallel()

	f := FromText(confirmationText).Fields

	require.Equal(t, "다낭 3박5일 자유여행", f.ProductName)
	require.Equal(t, "다낭", f.Destination)
	require.Equal(t, "2024-05-01", f.DepartureDate)
	require.Equal(t, "2024-05-05", f.ReturnDate)
	require.Equal(t, "3박5일", f.Duration)
	require.EqualValues(t, 949000, f.PriceAmount)
	require.Equal(t, CurrencyKRW, f.PriceCurrency)
	require.Equal(t, []string{"왕복항공권", "숙박", "여행자보험"}, f.Inclusions)
	require.Equal(t, []string{"개인경비", "가이드팁"}, f.Exclusions)
	require.Equal(t, []string{"바나힐 투어", "호이안 야경"}, f.Highlights)
	require.Equal(t, []string{"조식 3회", "석식 1회"}, f.Meals)
	require.Equal(t, "하얏트 리젠시 다낭", f.Hotel)
	require.Equal(t, "홍길동", f.CustomerName)
	require.Equal(t, "010-1234-5678", f.CustomerPhone)
	require.Equal(t, []trip.Traveler{
		{Category: trip.TravelerAdult},
		{Category: trip.TravelerAdult},
		{Category: trip.TravelerChild},
	}, f.Travelers)
}

func TestFromTextEmpty(t *testing.T) {
	t.Parallel()

	got := FromText("   ")
	require.Equal(t, trip.Fields{}, got.Fields)
}

func TestFindPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		text     string
		amount   int64
		currency string
	}{
		{"won suffix", "총 949,000원", 949000, CurrencyKRW},
		{"won sign", "₩1,290,000 부터", 1290000, CurrencyKRW},
		{"man won", "특가 94.9만원", 949000, CurrencyKRW},
		{"dollar", "only $1,299.50 per person", 1300, CurrencyUSD},
		{"usd prefix", "USD 850", 850, CurrencyUSD},
		{"keyword beats earlier amount", "쿠폰 5,000원 할인 판매가 899,000원", 899000, CurrencyKRW},
		{"none", "가격 문의", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			amount, currency := findPrice(tc.text)
			require.Equal(t, tc.amount, amount)
			require.Equal(t, tc.currency, currency)
		})
	}
}

func TestSplitListDropsLongAndDuplicateItems(t *testing.T) {
	t.Parallel()

	long := "이 항목은 지나치게 길어서 목록 항목이 아니라 본문 문장으로 보아야 하는 경우에 해당하므로 결과에서 제외되어야 합니다 정말로"
	got := splitList("숙박, 숙박 / " + long + " · 조식")
	require.Equal(t, []string{"숙박", "조식"}, got)
}

func TestFindDestinationPrefersEarliestLongest(t *testing.T) {
	t.Parallel()

	require.Equal(t, "하롱베이", findDestination("하롱베이 크루즈와 하노이 시내"))
	require.Equal(t, "다낭", findDestination("다낭/호이안 5일"))
	require.Equal(t, "Osaka", findDestination("osaka 3 nights"))
	require.Empty(t, findDestination("국내 어딘가"))
}
