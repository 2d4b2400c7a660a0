package formula

import (
	"fmt"
	"strings"
)

type node interface{}

type (
	numLit  struct{ v float64 }
	strLit  struct{ v string }
	boolLit struct{ v bool }
	nullLit struct{}
	colRef  struct{ name string }
	unary   struct {
		op string
		x  node
	}
	binary struct {
		op   string
		l, r node
	}
	call struct {
		name string
		args []node
	}
)

// Expr is a parsed formula.
type Expr struct {
	src  string
	root node
}

// Source returns the formula text.
func (e *Expr) Source() string { return e.src }

// Columns lists the column names the formula references, in first-seen order.
func (e *Expr) Columns() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(n node)
	walk = func(n node) {
		switch x := n.(type) {
		case colRef:
			if !seen[x.name] {
				seen[x.name] = true
				out = append(out, x.name)
			}
		case unary:
			walk(x.x)
		case binary:
			walk(x.l)
			walk(x.r)
		case call:
			for _, a := range x.args {
				walk(a)
			}
		}
	}
	walk(e.root)
	return out
}

// Parse compiles src. known lists the column names that may be referenced
// without brackets.
func Parse(src string, known []string) (*Expr, error) {
	toks, err := newLexer(src, known).all()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tEOF {
		return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
	return &Expr{src: src, root: root}, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tIdent && strings.EqualFold(t.text, word) {
		p.i++
		return true
	}
	return false
}

func (p *parser) op(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tOp {
		return "", false
	}
	for _, o := range ops {
		if t.text == o {
			p.i++
			return o, true
		}
	}
	return "", false
}

func (p *parser) or() (node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = binary{op: "OR", l: l, r: r}
	}
	return l, nil
}

func (p *parser) and() (node, error) {
	l, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		r, err := p.not()
		if err != nil {
			return nil, err
		}
		l = binary{op: "AND", l: l, r: r}
	}
	return l, nil
}

func (p *parser) not() (node, error) {
	if p.keyword("NOT") {
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return unary{op: "NOT", x: x}, nil
	}
	return p.compare()
}

func (p *parser) compare() (node, error) {
	l, err := p.additive()
	if err != nil {
		return nil, err
	}
	if o, ok := p.op("=", "==", "!=", "<>", "<", "<=", ">", ">="); ok {
		r, err := p.additive()
		if err != nil {
			return nil, err
		}
		switch o {
		case "==":
			o = "="
		case "<>":
			o = "!="
		}
		return binary{op: o, l: l, r: r}, nil
	}
	return l, nil
}

func (p *parser) additive() (node, error) {
	l, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		o, ok := p.op("+", "-", "&")
		if !ok {
			return l, nil
		}
		r, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		l = binary{op: o, l: l, r: r}
	}
}

func (p *parser) multiplicative() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		o, ok := p.op("*", "/", "%")
		if !ok {
			return l, nil
		}
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binary{op: o, l: l, r: r}
	}
}

func (p *parser) unary() (node, error) {
	if o, ok := p.op("-", "+"); ok {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if o == "+" {
			return x, nil
		}
		return unary{op: "-", x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.advance()
	switch t.kind {
	case tNumber:
		return numLit{t.num}, nil
	case tString:
		return strLit{t.text}, nil
	case tColumn:
		return colRef{t.text}, nil
	case tLParen:
		x, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.advance().kind != tRParen {
			return nil, fmt.Errorf("missing ) for ( at %d", t.pos)
		}
		return x, nil
	case tIdent:
		if p.peek().kind == tLParen {
			return p.call(t)
		}
		switch strings.ToUpper(t.text) {
		case "TRUE":
			return boolLit{true}, nil
		case "FALSE":
			return boolLit{false}, nil
		case "NULL":
			return nullLit{}, nil
		}
		return nil, fmt.Errorf("unknown column %q at %d", t.text, t.pos)
	case tEOF:
		return nil, fmt.Errorf("unexpected end of formula")
	}
	return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
}

func (p *parser) call(name token) (node, error) {
	fn := strings.ToUpper(name.text)
	def, ok := library[fn]
	if !ok {
		return nil, fmt.Errorf("unknown function %s at %d", name.text, name.pos)
	}
	p.advance() // (
	var args []node
	if p.peek().kind != tRParen {
		for {
			a, err := p.or()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tComma {
				break
			}
			p.advance()
		}
	}
	if p.advance().kind != tRParen {
		return nil, fmt.Errorf("missing ) after %s arguments", fn)
	}
	if len(args) < def.min || (def.max >= 0 && len(args) > def.max) {
		return nil, fmt.Errorf("%s takes %s arguments, got %d", fn, def.arity(), len(args))
	}
	return call{name: fn, args: args}, nil
}
