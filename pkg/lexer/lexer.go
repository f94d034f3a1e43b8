package lexer

import "strings"

// The lexer scans template source and yields tokens for text and the three
// Django delimiter forms: variables {{ }}, tags {% %}, and comments {# #}.
// A delimiter pair only forms a tag when no newline occurs between the
// opening and the closing delimiter; otherwise the characters are text.

type lexer struct {
	src  string
	i    int
	n    int
	line int

	// verbatim holds the end tag that closes the current verbatim region.
	verbatim string
	tokens   []Token
}

// Tokenize splits src into tokens in document order. It never fails: input
// that does not form a tag is returned as text.
func Tokenize(src string) []Token {
	l := &lexer{src: src, n: len(src), line: 1}
	l.run()
	return l.tokens
}

func (l *lexer) run() {
	textStart := 0
	for l.i < l.n {
		end, ok := l.tagAt(l.i)
		if !ok {
			l.i++
			continue
		}
		if l.i > textStart {
			l.emit(Text, l.src[textStart:l.i], l.src[textStart:l.i])
		}
		l.emitTag(l.src[l.i:end])
		l.i = end
		textStart = end
	}
	if textStart < l.n {
		l.emit(Text, l.src[textStart:], l.src[textStart:])
	}
}

// tagAt reports whether a tag starts at offset i and returns the offset just
// past its closing delimiter.
func (l *lexer) tagAt(i int) (int, bool) {
	if i+2 > l.n || l.src[i] != '{' {
		return 0, false
	}
	var closing string
	switch l.src[i+1] {
	case '{':
		closing = varEnd
	case '%':
		closing = blockEnd
	case '#':
		closing = commentEnd
	default:
		return 0, false
	}
	for j := i + 2; j+len(closing) <= l.n; j++ {
		if l.src[j] == '\n' {
			return 0, false
		}
		if l.src[j:j+len(closing)] == closing {
			return j + len(closing), true
		}
	}
	return 0, false
}

func (l *lexer) emitTag(raw string) {
	body := strings.TrimSpace(raw[2 : len(raw)-2])
	if strings.HasPrefix(raw, blockStart) && l.verbatim != "" && body == l.verbatim {
		l.verbatim = ""
	}
	if l.verbatim != "" {
		l.emit(Text, raw, raw)
		return
	}
	switch {
	case strings.HasPrefix(raw, varStart):
		l.emit(Var, body, raw)
	case strings.HasPrefix(raw, blockStart):
		if body == "verbatim" || strings.HasPrefix(body, "verbatim ") {
			l.verbatim = "end" + body
		}
		l.emit(Block, body, raw)
	default:
		l.emit(Comment, body, raw)
	}
}

func (l *lexer) emit(typ Type, contents, raw string) {
	l.tokens = append(l.tokens, Token{Type: typ, Contents: contents, Raw: raw, Line: l.line})
	l.line += strings.Count(raw, "\n")
}
