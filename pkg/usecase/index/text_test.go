package index_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/culprit/pkg/usecase/index"
	"github.com/m-mizutani/gt"
)

func TestTruncateShortText(t *testing.T) {
	out, cut, err := index.Truncate("Title: fix login.", 100)
	gt.NoError(t, err)
	gt.False(t, cut)
	gt.Equal(t, out, "Title: fix login.")
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	text := strings.Repeat("ログイン処理の修正とセッション管理。", 20)

	for budget := 1; budget < 40; budget++ {
		out, cut, err := index.Truncate(text, budget)
		gt.NoError(t, err)
		gt.True(t, cut)
		if !utf8.ValidString(out) {
			t.Errorf("invalid UTF-8 at budget %d: %q", budget, out)
		}
	}
}
