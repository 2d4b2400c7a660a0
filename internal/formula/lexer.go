package formula

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokKind int

const (
	tEOF tokKind = iota
	tNumber
	tString
	tColumn
	tIdent
	tOp
	tLParen
	tRParen
	tComma
)

type token struct {
	kind tokKind
	text string // operator text, identifier, column name or literal
	num  float64
	pos  int
}

// lexer splits a formula into tokens. Column references are matched against
// the known column names, longest first, so names with spaces or symbols
// ("Venta$", "Fecha Factura") need no quoting.
type lexer struct {
	src   string
	pos   int
	names []string // known names, longest first
}

func newLexer(src string, known []string) *lexer {
	names := append([]string(nil), known...)
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return &lexer{src: src, names: names}
}

func (l *lexer) all() ([]token, error) {
	var out []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tEOF {
			return out, nil
		}
	}
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += w
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tEOF, pos: start}, nil
	}
	rest := l.src[l.pos:]

	if name, ok := l.matchColumn(rest); ok {
		l.pos += len(name)
		return token{kind: tColumn, text: name, pos: start}, nil
	}

	c := rest[0]
	switch {
	case c == '[':
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return token{}, fmt.Errorf("unterminated [ at %d", start)
		}
		l.pos += end + 1
		return token{kind: tColumn, text: strings.TrimSpace(rest[1:end]), pos: start}, nil

	case c == '\'' || c == '"':
		return l.lexString(c)

	case c >= '0' && c <= '9' || (c == '.' && len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9'):
		return l.lexNumber()

	case c == '(':
		l.pos++
		return token{kind: tLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tComma, text: ",", pos: start}, nil
	}

	for _, op := range []string{"==", "!=", "<>", "<=", ">=", "+", "-", "*", "/", "%", "=", "<", ">", "&"} {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return token{kind: tOp, text: op, pos: start}, nil
		}
	}

	r, _ := utf8.DecodeRuneInString(rest)
	if isIdentRune(r) {
		end := 0
		for end < len(rest) {
			r, w := utf8.DecodeRuneInString(rest[end:])
			if !isIdentRune(r) {
				break
			}
			end += w
		}
		l.pos += end
		return token{kind: tIdent, text: rest[:end], pos: start}, nil
	}
	return token{}, fmt.Errorf("unexpected %q at %d", r, start)
}

// matchColumn returns the longest known name at the start of s. A name that
// ends in an identifier rune must not be followed by another one, and a
// match followed by "(" is left for a function call.
func (l *lexer) matchColumn(s string) (string, bool) {
	for _, n := range l.names {
		if n == "" || !strings.HasPrefix(s, n) {
			continue
		}
		after := s[len(n):]
		last, _ := utf8.DecodeLastRuneInString(n)
		if next, _ := utf8.DecodeRuneInString(after); after != "" && isIdentRune(last) && isIdentRune(next) {
			continue
		}
		if strings.HasPrefix(strings.TrimLeftFunc(after, unicode.IsSpace), "(") && isFuncName(n) {
			continue
		}
		return n, true
	}
	return "", false
}

func (l *lexer) lexString(q byte) (token, error) {
	start := l.pos
	var b strings.Builder
	i := l.pos + 1
	for i < len(l.src) {
		c := l.src[i]
		if c == q {
			if i+1 < len(l.src) && l.src[i+1] == q {
				b.WriteByte(q)
				i += 2
				continue
			}
			l.pos = i + 1
			return token{kind: tString, text: b.String(), pos: start}, nil
		}
		b.WriteByte(c)
		i++
	}
	return token{}, fmt.Errorf("unterminated string at %d", start)
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	i := l.pos
	seenDot, seenExp := false, false
	for i < len(l.src) {
		c := l.src[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && !seenExp && i+1 < len(l.src) &&
			(l.src[i+1] >= '0' && l.src[i+1] <= '9' || l.src[i+1] == '-' || l.src[i+1] == '+'):
			seenExp = true
			if l.src[i+1] == '-' || l.src[i+1] == '+' {
				i++
			}
		default:
			goto done
		}
		i++
	}
done:
	text := l.src[start:i]
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("bad number %q at %d", text, start)
	}
	l.pos = i
	return token{kind: tNumber, text: text, num: f, pos: start}, nil
}
