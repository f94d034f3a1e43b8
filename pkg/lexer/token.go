package lexer

import (
	"fmt"
	"strings"
)

// Type identifies the kind of a token.
type Type int

const (
	Text Type = iota
	Var
	Block
	Comment
)

const (
	varStart     = "{{"
	varEnd       = "}}"
	blockStart   = "{%"
	blockEnd     = "%}"
	commentStart = "{#"
	commentEnd   = "#}"
)

func (t Type) String() string {
	switch t {
	case Text:
		return "text"
	case Var:
		return "var"
	case Block:
		return "block"
	case Comment:
		return "comment"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Token is a single lexical unit of a template.
type Token struct {
	Type Type
	// Contents is the body of a tag with surrounding whitespace removed, or
	// the literal text of a Text token.
	Contents string
	// Raw is the exact source text of the token, delimiters included.
	Raw  string
	Line int
}

// SplitTag splits the contents of a tag into its name and the remainder,
// separated by the first run of whitespace.
func (t Token) SplitTag() (name, args string) {
	s := strings.TrimSpace(t.Contents)
	i := strings.IndexAny(s, " \t\r\n\f\v")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Contents)
}
