package pancake

import (
	"strings"
)

// Flatten merges the ancestor chain of t into its most general template and
// returns the resulting text. Blocks defined by more specific templates
// replace the content of the same-named blocks of their ancestors, the
// libraries loaded anywhere in the chain are collected into a single load tag
// at the start of the output, and every other tag is left as written.
//
// Flatten rewrites the nodes of the chain in place, so the result is cached on
// every template of the chain. Flattening t again, or any of its ancestors
// from the same parse, returns the text of the first call. Parse the ancestor
// on its own to flatten it without t's overrides.
func Flatten(t *Template) string {
	if t.flattened {
		return t.output
	}

	chain := t.Chain()
	master := chain[0]
	a := master.arena

	for _, child := range chain[1:] {
		for _, id := range a.blocksUnder(child.root) {
			name := a.name(id)
			if reg, ok := master.Blocks[name]; ok {
				a.override(reg, id)
			}
			// Registered even when the base has no such block, so a more
			// specific template can still find it. Content of a block that
			// never reaches the base's tree is not emitted.
			master.Blocks[name] = id
		}
		for lib := range child.Loads {
			master.Loads[lib] = struct{}{}
		}
	}

	if len(master.Loads) > 0 {
		a.prependLeaf(master.root, Leaf{Text: "{% load " + strings.Join(master.LoadNames(), " ") + " %}"})
	}

	var sb strings.Builder
	a.render(&sb, master.root, map[NodeID]bool{})

	out := sb.String()
	for _, tmpl := range chain {
		tmpl.flattened = true
		tmpl.output = out
	}
	return out
}

// blocksUnder lists every block reachable from id in document order. The list
// is a snapshot; later overrides do not change it.
func (a *Arena) blocksUnder(id NodeID) []NodeID {
	var out []NodeID
	var visit func(NodeID, map[NodeID]bool)
	visit = func(id NodeID, path map[NodeID]bool) {
		id = a.resolve(id)
		path[id] = true
		defer delete(path, id)
		for _, leaf := range a.leaves(id) {
			if !leaf.IsNode() {
				continue
			}
			child := a.resolve(leaf.Child)
			if path[child] {
				continue
			}
			out = append(out, child)
			visit(child, path)
		}
	}
	visit(id, map[NodeID]bool{})
	return out
}

// render writes the text leaves under id depth first. A node that is already
// on the current path is skipped; a node may otherwise appear any number of
// times.
func (a *Arena) render(sb *strings.Builder, id NodeID, path map[NodeID]bool) {
	id = a.resolve(id)
	if path[id] {
		return
	}
	path[id] = true
	defer delete(path, id)
	for _, leaf := range a.leaves(id) {
		if leaf.IsNode() {
			a.render(sb, leaf.Child, path)
			continue
		}
		sb.WriteString(leaf.Text)
	}
}
