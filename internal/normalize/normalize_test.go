package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStripsNoiseAndCollapsesSpace(t *testing.T) {
	t.Parallel()

	markup := `<html><head><title>다낭 3박5일</title><style>.x{color:red}</style></head>
<body>
  <h1>다낭   3박5일</h1>
  <script>var secret = "do not leak";</script>
  <noscript>enable js</noscript>
  <div>포함사항:<span>왕복항공권</span>,<b>숙박</b></div>
  <p>불포함사항:&nbsp;개인경비</p>
</body></html>`

	got := Normalize(markup)

	require.NotContains(t, got.PlainText, "secret")
	require.NotContains(t, got.PlainText, "color:red")
	require.NotContains(t, got.PlainText, "enable js")
	require.NotContains(t, got.PlainText, "  ")
	require.Contains(t, got.PlainText, "다낭 3박5일")
	require.Contains(t, got.PlainText, "왕복항공권")
	require.Contains(t, got.PlainText, "개인경비")
	require.Equal(t, "다낭 3박5일", got.PageTitle)
	require.Empty(t, got.EmbeddedPayload)
}

func TestNormalizeKeepsWordsFromAdjacentTagsApart(t *testing.T) {
	t.Parallel()

	got := Normalize(`<ul><li>조식</li><li>석식</li></ul>`)
	require.Equal(t, "조식 석식", got.PlainText)
}

func TestNormalizePrefersOpenGraphTitle(t *testing.T) {
	t.Parallel()

	got := Normalize(`<html><head><title>Shop | Home</title><meta property="og:title" content="오사카 2박3일"></head><body></body></html>`)
	require.Equal(t, "오사카 2박3일", got.PageTitle)
}

func TestNormalizeEmptyInput(t *testing.T) {
	t.Parallel()

	got := Normalize("   ")
	require.Empty(t, got.PlainText)
	require.Empty(t, got.EmbeddedPayload)
}

func TestStripTagsFallback(t *testing.T) {
	t.Parallel()

	got := stripTags(`<div>a<script>evil()</script>  <!-- c --> b &amp; c</div>`)
	require.Equal(t, "a b & c", got)
}

func TestExtractPayload(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "next data",
			markup: `<script id="__NEXT_DATA__" type="application/json">{"props":{"price":949000}}</script>`,
			want:   `{"props":{"price":949000}}`,
		},
		{
			name:   "initial state assignment",
			markup: `<script>window.__INITIAL_STATE__ = {"product":{"name":"다낭 {특가}"}};var x=1;</script>`,
			want:   `{"product":{"name":"다낭 {특가}"}}`,
		},
		{
			name:   "apollo state",
			markup: `<script>window.__APOLLO_STATE__={"a":[1,2,{"b":"]"}]}</script>`,
			want:   `{"a":[1,2,{"b":"]"}]}`,
		},
		{
			name:   "json ld",
			markup: `<script type="application/ld+json"> {"@type":"Product"} </script>`,
			want:   `{"@type":"Product"}`,
		},
		{
			name:   "unbalanced state",
			markup: `<script>window.__NUXT__ = {"a":1</script>`,
			want:   "",
		},
		{
			name:   "no payload",
			markup: `<div>plain</div>`,
			want:   "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ExtractPayload(tc.markup))
		})
	}
}

func TestNormalizeCarriesPayloadButNotInText(t *testing.T) {
	t.Parallel()

	got := Normalize(`<body><p>hello</p><script id="__NEXT_DATA__">{"title":"x"}</script></body>`)
	require.Equal(t, `{"title":"x"}`, got.EmbeddedPayload)
	require.Equal(t, "hello", got.PlainText)
	require.True(t, got.HasPayload())
}

func FuzzNormalize(f *testing.F) {
	seeds := []string{
		"",
		"<p>a  b</p>",
		"<script>x</script>y",
		"<div><style>",
		"window.__INITIAL_STATE__ = {\"a\":\"\\\"}\"}",
		"<<<>>>\t\n",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, markup string) {
		got := Normalize(markup)
		if strings.Contains(got.PlainText, "  ") {
			t.Errorf("Normalize(%q) left a double space: %q", markup, got.PlainText)
		}
		if got.PlainText != strings.TrimSpace(got.PlainText) {
			t.Errorf("Normalize(%q) returned untrimmed text", markup)
		}
	})
}
