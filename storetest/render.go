package storetest

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/blocktree-io/blocktree"
)

// Render returns the store's tree as one line per block, depth-first,
// two spaces of indent per level. Two stores holding the same tree
// render identically, which is what the equivalence checks compare.
func Render(s blocktree.Store) string {
	return renderTranslated(s, nil)
}

// renderTranslated renders with block ids passed through translate, so
// a system under test with backend-generated ids can be compared
// against the reference in the reference's id space.
func renderTranslated(s blocktree.Store, translate func(string) string) string {
	var b strings.Builder
	b.WriteString(blocktree.RootID + "\n")
	renderChildren(&b, s, blocktree.RootID, 1, translate)
	return b.String()
}

func renderChildren(b *strings.Builder, s blocktree.Store, parentID string, depth int, translate func(string) string) {
	children, err := s.ListChildren(parentID)
	if err != nil {
		fmt.Fprintf(b, "%s!err %v\n", strings.Repeat("  ", depth), err)
		return
	}
	for _, c := range children {
		id := c.ID
		if translate != nil {
			id = translate(id)
		}
		fmt.Fprintf(b, "%s%s %q\n", strings.Repeat("  ", depth), id, c.Content)
		renderChildren(b, s, c.ID, depth+1, translate)
	}
}

// LineDiff returns a line-oriented diff of two renders, - for lines
// only in from and + for lines only in to. Output is colored when
// attached to a terminal.
func LineDiff(from, to string) string {
	dmp := diffpatch.New()
	a, bs, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, bs, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffpatch.DiffDelete:
				out.WriteString(color.RedString("- %s", line))
			case diffpatch.DiffInsert:
				out.WriteString(color.GreenString("+ %s", line))
			case diffpatch.DiffEqual:
				out.WriteString("  " + line)
			}
			out.WriteString("\n")
		}
	}
	return out.String()
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
