package pancake

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/neurodesk/pancake/pkg/lexer"
)

// superVar is the variable that expands to the parent's content of the
// enclosing block.
const superVar = "block.super"

type directive int

const (
	directiveNone directive = iota
	directiveBlock
	directiveEndblock
	directiveExtends
	directiveInclude
	directiveLoad
	directiveComment
)

var directives = map[string]directive{
	"block":    directiveBlock,
	"endblock": directiveEndblock,
	"extends":  directiveExtends,
	"include":  directiveInclude,
	"load":     directiveLoad,
	"comment":  directiveComment,
}

// Parser builds template trees. Strict selects whether include and extends
// forms that cannot be resolved statically are errors or are passed through
// unchanged; it applies to every template reached from the entry template.
type Parser struct {
	Loader Loader
	Strict bool
	// Tokens, when set, caches token streams across parses.
	Tokens *TokenCache
}

func NewParser(loader Loader) *Parser {
	return &Parser{Loader: loader}
}

// Parse builds the tree for the named template, recursively parsing every
// template it extends or includes.
func (p *Parser) Parse(name string) (*Template, error) {
	if p.Loader == nil {
		return nil, errors.New("parser requires a loader")
	}
	s := &session{parser: p, arena: newArena()}
	return s.parse(name)
}

// Flatten parses the named template and flattens its inheritance chain.
func (p *Parser) Flatten(name string) (string, error) {
	t, err := p.Parse(name)
	if err != nil {
		return "", err
	}
	return Flatten(t), nil
}

func (p *Parser) tokenize(name string) ([]lexer.Token, error) {
	if p.Tokens != nil {
		if toks, ok := p.Tokens.Get(name); ok {
			return toks, nil
		}
	}
	src, err := p.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	toks := lexer.Tokenize(src)
	if p.Tokens != nil {
		p.Tokens.Add(name, toks)
	}
	return toks, nil
}

// session holds the state shared by one top-level Parse call and every
// recursive parse it triggers.
type session struct {
	parser *Parser
	arena  *Arena
	// active lists the templates currently being parsed, outermost first.
	active []string
}

func (s *session) parse(name string) (*Template, error) {
	for _, n := range s.active {
		if n == name {
			return nil, errors.Wrapf(ErrCyclicInheritance, "%s", strings.Join(append(append([]string(nil), s.active...), name), " -> "))
		}
	}

	toks, err := s.parser.tokenize(name)
	if err != nil {
		return nil, err
	}

	s.active = append(s.active, name)
	defer func() { s.active = s.active[:len(s.active)-1] }()

	b := &builder{
		session: s,
		root:    newTemplate(name, s.arena),
		tokens:  toks,
	}
	b.stack = []NodeID{b.root.root}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b.root, nil
}

// builder consumes the tokens of a single template.
type builder struct {
	*session
	root   *Template
	tokens []lexer.Token
	pos    int
	// stack holds the open containers; the root is always at the bottom.
	stack []NodeID
}

func (b *builder) current() NodeID {
	return b.stack[len(b.stack)-1]
}

func (b *builder) emit(text string) {
	b.arena.appendLeaves(b.current(), Leaf{Text: text})
}

func (b *builder) build() error {
	for b.pos < len(b.tokens) {
		tok := b.tokens[b.pos]
		b.pos++

		switch tok.Type {
		case lexer.Text:
			b.emit(tok.Contents)
		case lexer.Var:
			if tok.Contents == superVar {
				if err := b.doSuper(tok); err != nil {
					return err
				}
				continue
			}
			b.emit(tok.Raw)
		case lexer.Block:
			name, args := tok.SplitTag()
			if err := b.dispatch(directives[name], tok, args); err != nil {
				return err
			}
		case lexer.Comment:
			// dropped
		}
	}
	return nil
}

func (b *builder) dispatch(d directive, tok lexer.Token, args string) error {
	switch d {
	case directiveBlock:
		return b.doBlock(tok, args)
	case directiveEndblock:
		return b.doEndblock(tok)
	case directiveExtends:
		return b.doExtends(tok, args)
	case directiveInclude:
		return b.doInclude(tok, args)
	case directiveLoad:
		b.doLoad(args)
	case directiveComment:
		b.doComment()
	default:
		b.emit(tok.Raw)
	}
	return nil
}

func (b *builder) doBlock(tok lexer.Token, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return tokenError(ErrMissingArgument, b.root.Name, tok, "{%% block %%} without a name")
	}
	id := b.arena.alloc(BlockKind, name)
	b.arena.appendLeaves(b.current(), Leaf{Child: id})
	b.root.Blocks[name] = id
	b.stack = append(b.stack, id)
	return nil
}

func (b *builder) doEndblock(tok lexer.Token) error {
	if len(b.stack) == 1 {
		return tokenError(ErrUnbalancedBlock, b.root.Name, tok, "{%% endblock %%} outside of a block")
	}
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

func (b *builder) doExtends(tok lexer.Token, args string) error {
	if args == "" {
		return tokenError(ErrMissingArgument, b.root.Name, tok, "{%% extends %%} without an argument")
	}
	name, ok := unquote(args)
	if !ok {
		return tokenError(ErrUnsupportedDirectiveForm, b.root.Name, tok, "variable {%% extends %%} tags are not supported: %s", args)
	}
	parent, err := b.parse(name)
	if err != nil {
		return errors.WithMessagef(err, "%s:%d: extends %q", b.root.Name, tok.Line, name)
	}
	b.root.Parent = parent
	return nil
}

func (b *builder) doInclude(tok lexer.Token, args string) error {
	if hasWord(args, "only") {
		return b.degrade(tok, ErrUnsupportedIncludeModifier, "{%% include %%} tags containing \"only\" are not supported")
	}
	target, rest := splitFirst(args)
	name, ok := unquote(target)
	if !ok {
		return b.degrade(tok, ErrUnsupportedDirectiveForm, "variable {%% include %%} tags are not supported: %s", target)
	}
	rest = strings.TrimPrefix(rest, "with ")

	included, err := b.parse(name)
	if err != nil {
		return errors.WithMessagef(err, "%s:%d: include %q", b.root.Name, tok.Line, name)
	}
	for lib := range included.Loads {
		b.root.Loads[lib] = struct{}{}
	}
	// Included blocks become blocks of the includer and can be overridden by
	// its descendants.
	for blockName, id := range included.Blocks {
		b.root.Blocks[blockName] = id
	}

	if rest != "" {
		b.emit("{% with " + rest + " %}")
	}
	b.arena.appendLeaves(b.current(), b.arena.leaves(included.root)...)
	if rest != "" {
		b.emit("{% endwith %}")
	}
	return nil
}

// degrade either fails with kind (strict mode) or passes the tag through.
func (b *builder) degrade(tok lexer.Token, kind error, format string, args ...interface{}) error {
	if b.parser.Strict {
		return tokenError(kind, b.root.Name, tok, format, args...)
	}
	b.emit(tok.Raw)
	return nil
}

func (b *builder) doLoad(args string) {
	for _, lib := range strings.Fields(args) {
		b.root.Loads[lib] = struct{}{}
	}
}

// doComment skips every token up to and including the next endcomment tag.
// Nested comment tags are not counted.
func (b *builder) doComment() {
	for b.pos < len(b.tokens) {
		tok := b.tokens[b.pos]
		b.pos++
		if tok.Type != lexer.Block {
			continue
		}
		if name, _ := tok.SplitTag(); name == "endcomment" {
			return
		}
	}
}

// doSuper appends the nearest ancestor's content for the enclosing block.
func (b *builder) doSuper(tok lexer.Token) error {
	if b.root.Parent == nil {
		return tokenError(ErrSuperWithoutParent, b.root.Name, tok, "{{ block.super }} in a template that has no parent")
	}
	top := b.current()
	if top == b.root.root {
		return nil
	}
	name := b.arena.name(top)
	for anc := b.root.Parent; anc != nil; anc = anc.Parent {
		if id, ok := anc.Blocks[name]; ok {
			b.arena.appendLeaves(top, b.arena.leaves(id)...)
			break
		}
	}
	return nil
}

// unquote strips matching single or double quotes from s.
func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return "", false
	}
	return s[1 : len(s)-1], true
}

func splitFirst(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func hasWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}
