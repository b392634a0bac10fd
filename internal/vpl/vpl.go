// Package vpl parses the pipeline description language used to assemble a
// tile source from readers and transform operators:
//
//	pipeline := node ("|" node)*
//	node     := identifier (property)* ("[" pipeline ("," pipeline)* "]")?
//	property := identifier "=" value
//	value    := string | bare | "[" value ("," value)* "]"
//
// A parsed pipeline is a flat chain of VPLNode, each carrying its own
// key/value properties and, for composite operators, a list of nested
// sub-pipelines. Nothing here knows how to execute a node -- that is
// internal/pipeline's job.
package vpl

import (
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Value is a property value: either a bare/quoted string or a list of
// values (`[a, b, c]`).
type Value struct {
	Scalar string
	List   []Value
}

func scalar(s string) Value { return Value{Scalar: s} }

// IsList reports whether the value is a `[...]` list rather than a scalar.
func (v Value) IsList() bool { return v.List != nil }

// VPLNode is one pipeline stage: an operator name, its properties, and (for
// composite operators like from_stacked) a list of nested pipelines.
type VPLNode struct {
	Name       string
	Properties map[string]Value
	Children   []VPLPipeline
}

// VPLPipeline is a sequence of nodes chained with `|`, read left to right:
// the first node is a read operation, each following node transforms the
// source produced by the previous one.
type VPLPipeline struct {
	Nodes []VPLNode
}

// Parse parses a VPL expression into a pipeline tree.
func Parse(input string) (VPLPipeline, error) {
	p := &parser{lex: newLexer(input)}
	p.advance()
	pipeline, err := p.parsePipeline()
	if err != nil {
		return VPLPipeline{}, err
	}
	if p.tok.kind != tokEOF {
		return VPLPipeline{}, xerrors.Errorf("unexpected trailing input at position %d: %q", p.tok.pos, p.tok.text)
	}
	return pipeline, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() {
	p.tok = p.lex.next()
}

func (p *parser) parsePipeline() (VPLPipeline, error) {
	var nodes []VPLNode
	node, err := p.parseNode()
	if err != nil {
		return VPLPipeline{}, err
	}
	nodes = append(nodes, node)
	for p.tok.kind == tokPipe {
		p.advance()
		node, err := p.parseNode()
		if err != nil {
			return VPLPipeline{}, err
		}
		nodes = append(nodes, node)
	}
	return VPLPipeline{Nodes: nodes}, nil
}

func (p *parser) parseNode() (VPLNode, error) {
	if p.tok.kind != tokIdent {
		return VPLNode{}, xerrors.Errorf("expected operator name at position %d, got %q", p.tok.pos, p.tok.text)
	}
	node := VPLNode{Name: p.tok.text, Properties: map[string]Value{}}
	p.advance()

	for p.tok.kind == tokIdent {
		key := p.tok.text
		p.advance()
		if p.tok.kind != tokEquals {
			return VPLNode{}, xerrors.Errorf("expected '=' after property %q at position %d", key, p.tok.pos)
		}
		p.advance()
		val, err := p.parseValue()
		if err != nil {
			return VPLNode{}, err
		}
		if _, dup := node.Properties[key]; dup {
			return VPLNode{}, xerrors.Errorf("duplicate property %q on operator %q", key, node.Name)
		}
		node.Properties[key] = val
	}

	if p.tok.kind == tokLBracket {
		p.advance()
		child, err := p.parsePipeline()
		if err != nil {
			return VPLNode{}, err
		}
		node.Children = append(node.Children, child)
		for p.tok.kind == tokComma {
			p.advance()
			child, err := p.parsePipeline()
			if err != nil {
				return VPLNode{}, err
			}
			node.Children = append(node.Children, child)
		}
		if p.tok.kind != tokRBracket {
			return VPLNode{}, xerrors.Errorf("expected ']' closing %q's children at position %d", node.Name, p.tok.pos)
		}
		p.advance()
	}

	return node, nil
}

func (p *parser) parseValue() (Value, error) {
	switch p.tok.kind {
	case tokString, tokIdent:
		v := scalar(p.tok.text)
		p.advance()
		return v, nil
	case tokLBracket:
		p.advance()
		var items []Value
		if p.tok.kind != tokRBracket {
			item, err := p.parseValue()
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
			for p.tok.kind == tokComma {
				p.advance()
				item, err := p.parseValue()
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
		}
		if p.tok.kind != tokRBracket {
			return Value{}, xerrors.Errorf("expected ']' closing value list at position %d", p.tok.pos)
		}
		p.advance()
		return Value{List: items}, nil
	default:
		return Value{}, xerrors.Errorf("expected a property value at position %d, got %q", p.tok.pos, p.tok.text)
	}
}

// AsString returns the value's scalar text, erroring if it is a list.
func (v Value) AsString() (string, error) {
	if v.IsList() {
		return "", xerrors.New("expected a scalar value, got a list")
	}
	return v.Scalar, nil
}

// AsStrings flattens a value into a slice of scalar strings, accepting
// both a bare scalar (returned as a single-element slice) and a list.
func (v Value) AsStrings() ([]string, error) {
	if !v.IsList() {
		return []string{v.Scalar}, nil
	}
	out := make([]string, 0, len(v.List))
	for _, item := range v.List {
		s, err := item.AsString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// AsFloats parses a value (scalar or list) as a slice of float64, the shape
// `filter bbox=[...]` needs.
func (v Value) AsFloats() ([]float64, error) {
	strs, err := v.AsStrings()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(strs))
	for i, s := range strs {
		f, err := parseFloat(strings.TrimSpace(s))
		if err != nil {
			return nil, xerrors.Wrapf(err, "parsing numeric value %q", s)
		}
		out[i] = f
	}
	return out, nil
}
