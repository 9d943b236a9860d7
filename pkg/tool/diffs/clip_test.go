package diffs_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/culprit/pkg/tool/diffs"
	"github.com/m-mizutani/gt"
)

func TestClipShortDiff(t *testing.T) {
	gt.Equal(t, diffs.Clip("+ a\n- b\n"), "+ a\n- b\n")
}

func TestClipKeepsValidUTF8(t *testing.T) {
	// "日" is 3 bytes, so a one byte prefix shifts every boundary off a rune start
	for prefix := range 3 {
		diff := strings.Repeat("x", prefix) + strings.Repeat("日", diffs.MaxDiffBytes)
		out := diffs.Clip(diff)
		gt.True(t, utf8.ValidString(out))
		gt.S(t, out).Contains("(diff truncated)")
		gt.True(t, len(out) <= diffs.MaxDiffBytes+len("\n... (diff truncated)"))
	}
}
