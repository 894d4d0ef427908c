package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicIsShell(t *testing.T) {
	t.Parallel()

	longText := "<p>" + strings.Repeat("다낭 자유여행 상품 안내 ", 40) + "</p>"

	cases := []struct {
		name   string
		markup string
		want   bool
	}{
		{"empty body", "  ", true},
		{"spa marker without text", `<html><body><div id="__next"></div></body></html>`, true},
		{"script heavy", `<html><script>var a=1;var b=2;</script><p>t</p></html>`, true},
		{"payload rescues shell", `<div id="__next"></div><script id="__NEXT_DATA__">{"a":1}</script>`, false},
		{"real content with marker", `<div id="root">` + longText + `</div>`, false},
		{"short static page", `<html><body><p>포함사항: 숙박</p></body></html>`, false},
	}
	h := NewHeuristic(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.IsShell(tc.markup))
		})
	}
}

func TestScriptDensityUnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh(`<p>x</p><script src="a.js"`))
	require.False(t, scriptDensityHigh(`<p>`+strings.Repeat("x", 100)+`</p>`))
}
