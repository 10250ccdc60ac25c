package btree

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// ExportDOT writes the tree as a Graphviz digraph. Internal records are blue,
// leaves green; each header shows the record number and fill.
func (t *BTree) ExportDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph BTree {")
	fmt.Fprintln(bw, "  graph [ranksep=0.8, nodesep=0.5, bgcolor=\"#ffffff\", rankdir=TB];")
	fmt.Fprintln(bw, "  node [shape=none, fontname=\"Helvetica\", fontsize=10];")
	fmt.Fprintln(bw, "  edge [arrowsize=0.8, color=\"#444444\"];")

	ok, err := t.hasRoot()
	if err != nil {
		return err
	}
	if ok {
		seen := make(map[int64]bool)
		stack := []int64{RootRecord}
		for len(stack) > 0 {
			rec := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[rec] {
				return invariantf("record %d is reachable twice", rec)
			}
			seen[rec] = true

			n, err := t.readTreeNode(rec)
			if err != nil {
				return err
			}
			fill := 100 * float64(n.Len()) / float64(t.Order())

			if n.IsLeaf() {
				label := fmt.Sprintf(`<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
    <TR><TD BGCOLOR="#D5E8D4"><B>RECORD %d (LEAF)</B><BR/><FONT POINT-SIZE="8">Fill: %.1f%%</FONT></TD></TR>
    <TR><TD BGCOLOR="#F5F5F5" ALIGN="LEFT">`, rec, fill)
				for _, s := range n.Slots {
					label += fmt.Sprintf("<B>%d</B> <FONT COLOR='#666666'>@%d</FONT><BR/>", s.Key, s.Addr)
				}
				label += `</TD></TR></TABLE>>`
				fmt.Fprintf(bw, "  r%d [label=%s];\n", rec, label)
				continue
			}

			label := fmt.Sprintf(`<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
    <TR><TD COLSPAN="%d" BGCOLOR="#DAE8FC"><B>RECORD %d (INTERNAL)</B><BR/><FONT POINT-SIZE="8">Fill: %.1f%%</FONT></TD></TR><TR>`,
				max(n.Len(), 1), rec, fill)
			for i, s := range n.Slots {
				label += fmt.Sprintf(`<TD PORT="f%d" BGCOLOR="#E1F5FE"><B>%d</B></TD>`, i, s.Key)
			}
			label += `</TR></TABLE>>`
			fmt.Fprintf(bw, "  r%d [label=%s];\n", rec, label)

			for i := n.Len() - 1; i >= 0; i-- {
				child := n.Slots[i].Addr
				fmt.Fprintf(bw, "  r%d:f%d -> r%d;\n", rec, i, child)
				stack = append(stack, child)
			}
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// RenderPNG writes the DOT export next to pngPath and runs Graphviz on it.
func (t *BTree) RenderPNG(dotPath, pngPath string) error {
	f, err := os.Create(dotPath)
	if err != nil {
		return err
	}
	if err := t.ExportDOT(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if out, err := exec.Command("dot", "-Tpng", dotPath, "-o", pngPath).CombinedOutput(); err != nil {
		return errors.Wrapf(err, "graphviz: %s", out)
	}
	return nil
}
