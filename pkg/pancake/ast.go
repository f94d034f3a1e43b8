package pancake

import "sort"

// NodeID is a stable handle to a node stored in an Arena. The zero value
// refers to no node.
type NodeID int

const NoNode NodeID = 0

// Kind distinguishes template roots from blocks.
type Kind int

const (
	TemplateKind Kind = iota + 1
	BlockKind
)

func (k Kind) String() string {
	switch k {
	case TemplateKind:
		return "Template"
	case BlockKind:
		return "Block"
	default:
		return "Unknown"
	}
}

// Leaf is one element of a node's content: either literal text or a child
// node.
type Leaf struct {
	Text  string
	Child NodeID
}

// IsNode reports whether the leaf refers to a child node.
func (l Leaf) IsNode() bool {
	return l.Child != NoNode
}

// Node is a named tree element with an ordered list of leaves.
type Node struct {
	Kind   Kind
	Name   string
	Leaves []Leaf
}

// Arena owns every node produced by one parse, including the nodes of all
// templates reached through extends and include. Nodes are addressed by
// handle; overriding a block forwards the overriding node's handle to the
// overridden one so that every holder of either handle sees the same content.
type Arena struct {
	nodes   []Node
	forward []NodeID
}

func newArena() *Arena {
	// Slot 0 backs NoNode.
	return &Arena{
		nodes:   make([]Node, 1),
		forward: make([]NodeID, 1),
	}
}

// Len returns the number of nodes allocated in the arena.
func (a *Arena) Len() int {
	return len(a.nodes) - 1
}

// Node returns a copy of the node behind id, following forwarded handles.
func (a *Arena) Node(id NodeID) Node {
	n := a.nodes[a.resolve(id)]
	n.Leaves = append([]Leaf(nil), n.Leaves...)
	return n
}

func (a *Arena) alloc(kind Kind, name string) NodeID {
	a.nodes = append(a.nodes, Node{Kind: kind, Name: name})
	a.forward = append(a.forward, NoNode)
	return NodeID(len(a.nodes) - 1)
}

func (a *Arena) resolve(id NodeID) NodeID {
	for a.forward[id] != NoNode {
		id = a.forward[id]
	}
	return id
}

func (a *Arena) name(id NodeID) string {
	return a.nodes[a.resolve(id)].Name
}

func (a *Arena) leaves(id NodeID) []Leaf {
	return a.nodes[a.resolve(id)].Leaves
}

func (a *Arena) appendLeaves(id NodeID, leaves ...Leaf) {
	n := &a.nodes[a.resolve(id)]
	n.Leaves = append(n.Leaves, leaves...)
}

func (a *Arena) prependLeaf(id NodeID, leaf Leaf) {
	n := &a.nodes[a.resolve(id)]
	n.Leaves = append([]Leaf{leaf}, n.Leaves...)
}

// override replaces the content of target with the content of source and
// forwards source to target. It is a no-op when both handles already refer
// to the same node.
func (a *Arena) override(target, source NodeID) {
	t, s := a.resolve(target), a.resolve(source)
	if t == s {
		return
	}
	a.nodes[t].Leaves = append([]Leaf(nil), a.nodes[s].Leaves...)
	a.forward[s] = t
}

// Template is the root of the tree built for one template file.
type Template struct {
	Name string
	// Parent is the fully built template named by this template's extends
	// tag, or nil.
	Parent *Template
	// Blocks maps every block name seen in this template (including those
	// spliced in by include) to the handle of its most recent definition.
	Blocks map[string]NodeID
	// Loads is the set of tag libraries named by load tags in this template
	// and the templates it includes.
	Loads map[string]struct{}

	arena *Arena
	root  NodeID

	flattened bool
	output    string
}

func newTemplate(name string, arena *Arena) *Template {
	return &Template{
		Name:   name,
		Blocks: make(map[string]NodeID),
		Loads:  make(map[string]struct{}),
		arena:  arena,
		root:   arena.alloc(TemplateKind, name),
	}
}

// Arena returns the arena holding the template's nodes.
func (t *Template) Arena() *Arena {
	return t.arena
}

// Root returns the handle of the template's root node.
func (t *Template) Root() NodeID {
	return t.root
}

// Leaves returns the top-level leaves of the template.
func (t *Template) Leaves() []Leaf {
	return t.arena.Node(t.root).Leaves
}

// LoadNames returns the loaded libraries in ascending order.
func (t *Template) LoadNames() []string {
	names := make([]string, 0, len(t.Loads))
	for name := range t.Loads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain returns the ancestor chain of t ordered from the most general
// template (the one with no parent) to t itself.
func (t *Template) Chain() []*Template {
	var chain []*Template
	for cur := t; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
