package pipeline

import (
	"strconv"

	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// props wraps a VPLNode's property map, tracking which keys a factory
// actually consumed so finish() can reject anything left over: an
// unrecognised property key fails the build.
type props struct {
	name string
	node vpl.VPLNode
	used map[string]bool
}

func newProps(node vpl.VPLNode) *props {
	return &props{name: node.Name, node: node, used: map[string]bool{}}
}

func (p *props) take(key string) (vpl.Value, bool) {
	v, ok := p.node.Properties[key]
	if ok {
		p.used[key] = true
	}
	return v, ok
}

func (p *props) string(key, def string) (string, error) {
	v, ok := p.take(key)
	if !ok {
		return def, nil
	}
	return v.AsString()
}

func (p *props) requireString(key string) (string, error) {
	v, ok := p.take(key)
	if !ok {
		return "", xerrors.Errorf("operator %q is missing required property %q", p.name, key)
	}
	return v.AsString()
}

func (p *props) boolean(key string, def bool) (bool, error) {
	v, ok := p.take(key)
	if !ok {
		return def, nil
	}
	s, err := v.AsString()
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, xerrors.Wrapf(err, "property %q of operator %q must be a bool", key, p.name)
	}
	return b, nil
}

func (p *props) integer(key string, def int) (int, error) {
	v, ok := p.take(key)
	if !ok {
		return def, nil
	}
	s, err := v.AsString()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, xerrors.Wrapf(err, "property %q of operator %q must be an integer", key, p.name)
	}
	return n, nil
}

func (p *props) float(key string, def float64) (float64, error) {
	v, ok := p.take(key)
	if !ok {
		return def, nil
	}
	fs, err := v.AsFloats()
	if err != nil {
		return 0, err
	}
	if len(fs) != 1 {
		return 0, xerrors.Errorf("property %q of operator %q must be a single number", key, p.name)
	}
	return fs[0], nil
}

func (p *props) floats(key string) ([]float64, error) {
	v, ok := p.take(key)
	if !ok {
		return nil, xerrors.Errorf("operator %q is missing required property %q", p.name, key)
	}
	return v.AsFloats()
}

func (p *props) strings(key string) ([]string, error) {
	v, ok := p.take(key)
	if !ok {
		return nil, nil
	}
	return v.AsStrings()
}

// finish errors if the node carries any property this factory never
// consumed -- an unrecognised key, since VPL has no concept of an optional
// property it doesn't know the name of.
func (p *props) finish() error {
	for key := range p.node.Properties {
		if !p.used[key] {
			return xerrors.Errorf("operator %q has unrecognised property %q", p.name, key)
		}
	}
	return nil
}
