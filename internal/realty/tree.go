package realty

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/clbanning/mxj/v2"
	"golang.org/x/net/html/charset"
)

// AttrPrefix marks attribute keys in the parsed tree; element text is under TextKey
const (
	AttrPrefix = "-"
	TextKey    = "#text"
)

func init() {
	// Registry extracts are not always UTF-8
	mxj.XmlCharsetReader = charset.NewReaderLabel
}

// Tree is a parsed XML document: elements are maps, repeated siblings are
// slices, attributes are keys prefixed with AttrPrefix
type Tree struct {
	root mxj.Map
}

// Parse reads one XML document into a tree
func Parse(r io.Reader) (Tree, error) {
	m, err := mxj.NewMapXmlReader(r)
	if err != nil {
		return Tree{}, fmt.Errorf("failed to parse xml: %w", err)
	}
	return Tree{root: m}, nil
}

// ParseBytes parses an in-memory XML document
func ParseBytes(data []byte) (Tree, error) {
	return Parse(bytes.NewReader(data))
}

// Root returns the whole document as a value
func (t Tree) Root() Value {
	return Value{Raw: map[string]interface{}(t.root), Found: t.root != nil}
}

// Get looks up a dotted path from the document root
func (t Tree) Get(path, def string) Value {
	return t.Root().Get(path, def)
}

// JSON renders the tree for diagnostics
func (t Tree) JSON() string {
	data, err := t.root.Json()
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(t.root))
	}
	return string(data)
}

// Value is the result of a path lookup. Found is false when any path
// segment was absent, in which case String yields the default.
type Value struct {
	Raw   interface{}
	Found bool
	def   string
}

// Get looks up a dotted path below v. A sequence met on the way is
// entered through its first element.
func (v Value) Get(path, def string) Value {
	if !v.Found {
		return Value{def: def}
	}

	node := v.Raw
	for _, key := range strings.Split(path, ".") {
		if seq, ok := node.([]interface{}); ok {
			if len(seq) == 0 {
				return Value{def: def}
			}
			node = seq[0]
		}

		m, ok := node.(map[string]interface{})
		if !ok {
			return Value{def: def}
		}
		next, exists := m[key]
		if !exists {
			return Value{def: def}
		}
		node = next
	}

	return Value{Raw: node, Found: true, def: def}
}

// IsSeq reports whether the value holds repeated sibling elements
func (v Value) IsSeq() bool {
	_, ok := v.Raw.([]interface{})
	return v.Found && ok
}

// Seq returns the value as a sequence: the elements of a repeated value,
// a single element otherwise, nothing when absent
func (v Value) Seq() []Value {
	if !v.Found {
		return nil
	}
	seq, ok := v.Raw.([]interface{})
	if !ok {
		return []Value{v}
	}

	out := make([]Value, len(seq))
	for i, item := range seq {
		out[i] = Value{Raw: item, Found: true, def: v.def}
	}
	return out
}

// String renders a scalar value, the text of an element with attributes,
// or the default when the value is absent or has no text
func (v Value) String() string {
	if !v.Found {
		return v.def
	}

	switch raw := v.Raw.(type) {
	case string:
		return raw
	case float64:
		return strconv.FormatFloat(raw, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(raw)
	case map[string]interface{}:
		if text, ok := raw[TextKey]; ok {
			return Value{Raw: text, Found: true, def: v.def}.String()
		}
		return v.def
	case []interface{}:
		if len(raw) == 0 {
			return v.def
		}
		return Value{Raw: raw[0], Found: true, def: v.def}.String()
	case nil:
		return v.def
	default:
		return fmt.Sprintf("%v", raw)
	}
}
