package titledb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokOpen
	tokClose
	tokWord
	tokString
)

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokOpen:
		return "'('"
	case tokClose:
		return "')'"
	case tokString:
		return fmt.Sprintf("%q", t.text)
	default:
		return t.text
	}
}

// lexer splits clrmamepro DAT text into parens, bare words and quoted strings.
type lexer struct {
	r    *bufio.Reader
	line int
}

func newLexer(r io.Reader) *lexer {
	return &lexer{r: bufio.NewReader(r), line: 1}
}

func (l *lexer) Next() (token, error) {
	return l.scan()
}

func (l *lexer) scan() (token, error) {
	for {
		c, _, err := l.r.ReadRune()
		if err == io.EOF {
			return token{kind: tokEOF, line: l.line}, nil
		}
		if err != nil {
			return token{}, err
		}

		switch {
		case c == '\n':
			l.line++
		case c == ' ' || c == '\t' || c == '\r' || c == '\uFEFF':
		case c == '(':
			return token{kind: tokOpen, line: l.line}, nil
		case c == ')':
			return token{kind: tokClose, line: l.line}, nil
		case c == '"':
			return l.quoted()
		default:
			_ = l.r.UnreadRune()
			return l.word()
		}
	}
}

func (l *lexer) quoted() (token, error) {
	start := l.line
	var sb strings.Builder
	for {
		c, _, err := l.r.ReadRune()
		if err == io.EOF {
			return token{}, &DatabaseParseError{Line: start, Reason: "unterminated quoted string"}
		}
		if err != nil {
			return token{}, err
		}
		switch c {
		case '"':
			return token{kind: tokString, text: sb.String(), line: start}, nil
		case '\n':
			return token{}, &DatabaseParseError{Line: start, Reason: "unterminated quoted string"}
		case '\\':
			next, _, err := l.r.ReadRune()
			if err != nil {
				return token{}, &DatabaseParseError{Line: start, Reason: "unterminated quoted string"}
			}
			sb.WriteRune(next)
		default:
			sb.WriteRune(c)
		}
	}
}

func (l *lexer) word() (token, error) {
	var sb strings.Builder
	for {
		c, _, err := l.r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return token{}, err
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '(' || c == ')' || c == '"' {
			_ = l.r.UnreadRune()
			break
		}
		sb.WriteRune(c)
	}
	return token{kind: tokWord, text: sb.String(), line: l.line}, nil
}
