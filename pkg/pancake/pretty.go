package pancake

import (
	"bytes"
	"fmt"
	"strings"
)

// Walk calls fn for every block reachable from the root of t, in document
// order. Blocks of ancestor templates are not visited. Walking stops at the
// first error fn returns.
func Walk(t *Template, fn func(id NodeID, n Node) error) error {
	a := t.arena
	for _, id := range a.blocksUnder(t.root) {
		if err := fn(id, a.Node(id)); err != nil {
			return err
		}
	}
	return nil
}

// Pretty returns a line-oriented dump of the tree of t followed by the trees
// of its ancestors.
func Pretty(t *Template) string {
	var buf bytes.Buffer
	indent := 0
	for cur := t; cur != nil; cur = cur.Parent {
		ppTemplate(&buf, indent, cur)
		if cur.Parent != nil {
			writeIndent(&buf, indent+2)
			buf.WriteString("Parent\n")
		}
		indent += 4
	}
	return buf.String()
}

func ppTemplate(buf *bytes.Buffer, indent int, t *Template) {
	writeIndent(buf, indent)
	fmt.Fprintf(buf, "Template(%s)\n", t.Name)
	if len(t.Loads) > 0 {
		writeIndent(buf, indent+2)
		fmt.Fprintf(buf, "Load(%s)\n", strings.Join(t.LoadNames(), " "))
	}
	ppLeaves(buf, indent+2, t.arena, t.root, map[NodeID]bool{t.arena.resolve(t.root): true})
}

func ppLeaves(buf *bytes.Buffer, indent int, a *Arena, id NodeID, path map[NodeID]bool) {
	for _, leaf := range a.leaves(id) {
		if !leaf.IsNode() {
			writeIndent(buf, indent)
			fmt.Fprintf(buf, "Text(%q)\n", leaf.Text)
			continue
		}
		child := a.resolve(leaf.Child)
		writeIndent(buf, indent)
		fmt.Fprintf(buf, "Block(%s)\n", a.name(child))
		if path[child] {
			continue
		}
		path[child] = true
		ppLeaves(buf, indent+2, a, child, path)
		delete(path, child)
	}
}

func writeIndent(buf *bytes.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.WriteByte(' ')
	}
}
