package change

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Annotate renders a unified diff with old and new line numbers in front of every hunk line so
// that a reader can cite exact lines. A diff that cannot be parsed is returned unchanged.
func Annotate(diff string) string {
	if strings.TrimSpace(diff) == "" {
		return diff
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(diff))
	if err != nil || len(fileDiffs) == 0 {
		return diff
	}

	var b strings.Builder
	for _, fd := range fileDiffs {
		fmt.Fprintf(&b, "--- %s\n+++ %s\n", fd.OrigName, fd.NewName)
		for _, hunk := range fd.Hunks {
			writeHunk(&b, hunk)
		}
	}
	return b.String()
}

func writeHunk(b *strings.Builder, hunk *godiff.Hunk) {
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@", hunk.OrigStartLine, hunk.OrigLines, hunk.NewStartLine, hunk.NewLines)
	if hunk.Section != "" {
		b.WriteString(" " + hunk.Section)
	}
	b.WriteString("\n")

	oldLine := int(hunk.OrigStartLine)
	newLine := int(hunk.NewStartLine)

	body := strings.TrimSuffix(string(hunk.Body), "\n")
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			fmt.Fprintf(b, "%5d %5d |\n", oldLine, newLine)
			oldLine++
			newLine++
			continue
		}

		switch line[0] {
		case '+':
			fmt.Fprintf(b, "%5s %5d | %s\n", "", newLine, line)
			newLine++
		case '-':
			fmt.Fprintf(b, "%5d %5s | %s\n", oldLine, "", line)
			oldLine++
		case '\\':
			fmt.Fprintf(b, "%5s %5s | %s\n", "", "", line)
		default:
			fmt.Fprintf(b, "%5d %5d | %s\n", oldLine, newLine, line)
			oldLine++
			newLine++
		}
	}
}
