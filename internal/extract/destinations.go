package extract

import "strings"

// destinations is the dictionary of place names recognized in titles and text.
// Longer names are checked first where one contains another.
var destinations = []string{
	"다낭", "나트랑", "냐짱", "하노이", "하롱베이", "호치민", "푸꾸옥", "달랏",
	"방콕", "파타야", "치앙마이", "푸켓", "코사무이", "끄라비",
	"발리", "세부", "보라카이", "보홀", "마닐라", "클락",
	"싱가포르", "코타키나발루", "쿠알라룸푸르", "랑카위",
	"괌", "사이판", "하와이", "호놀룰루",
	"오사카", "도쿄", "후쿠오카", "삿포로", "오키나와", "교토", "나고야", "홋카이도", "규슈",
	"홍콩", "마카오", "타이베이", "대만", "상하이", "베이징", "장가계", "칭다오", "서안",
	"제주", "부산", "울릉도",
	"파리", "로마", "런던", "바르셀로나", "스위스", "프라하", "동유럽", "서유럽",
	"뉴욕", "로스앤젤레스", "라스베이거스", "캐나다", "시드니", "멜버른", "뉴질랜드",
	"몰디브", "두바이", "이스탄불", "튀르키예", "이집트",
	"라오스", "비엔티안", "루앙프라방", "방비엥", "몽골", "울란바토르", "캄보디아", "씨엠립",
	"Da Nang", "Nha Trang", "Hanoi", "Bangkok", "Phuket", "Bali", "Cebu", "Boracay",
	"Singapore", "Guam", "Saipan", "Hawaii", "Osaka", "Tokyo", "Fukuoka", "Sapporo",
	"Okinawa", "Hong Kong", "Taipei", "Paris", "Rome", "London",
}

// findDestination returns the dictionary entry that appears earliest in text,
// preferring the longer name on a tie.
func findDestination(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	best, bestAt := "", -1
	for _, d := range destinations {
		at := strings.Index(lower, strings.ToLower(d))
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt || (at == bestAt && len(d) > len(best)) {
			best, bestAt = d, at
		}
	}
	return best
}
