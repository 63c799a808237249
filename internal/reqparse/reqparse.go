// Package reqparse implements the two request-shape adapters spec.md
// §4.4 specifies: unflattening bracketed x-www-form-urlencoded keys into
// nested records, and parsing repeated expand[] parameters into dotted
// expansion paths. Built directly against net/url.Values, the way the
// teacher's handlers already rely on net/http's own form parsing.
package reqparse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/EnaiaInc/paper-tiger/internal/store"
)

const (
	maxDepth      = 10
	maxIndex      = 1000
	maxParamCount = 1000
)

// Error reports a structural violation in the incoming parameter set.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// node is the intermediate tree shape used while unflattening, kept
// distinct from store.Record so array-vs-object ambiguity at a given key
// never collides with real field names.
type node struct {
	fields map[string]*node // set when this node is an object
	index  map[int]*node    // set when this node is an index-addressed array (k[0], k[1], ...)
	seq    []string         // set when this node is an append sequence (k[])
	scalar *string          // set when this node is a leaf value (k)
}

func newObjectNode() *node {
	return &node{fields: map[string]*node{}}
}

// Unflatten turns bracketed form keys into a nested store.Record. Keys
// are processed in sorted order so numeric-index sequences assemble
// deterministically regardless of form-encoding order.
func Unflatten(values map[string][]string) (store.Record, error) {
	total := 0
	for _, vs := range values {
		total += len(vs)
	}
	if total > maxParamCount {
		return nil, &Error{Message: fmt.Sprintf("too many parameters: %d exceeds limit of %d", total, maxParamCount)}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := newObjectNode()
	for _, key := range keys {
		for _, v := range values[key] {
			segs, err := parsePath(key)
			if err != nil {
				return nil, err
			}
			if err := root.assign(segs, v); err != nil {
				return nil, err
			}
		}
	}
	return root.toRecord(), nil
}

type pathSeg struct {
	name     string
	isAppend bool
	isIndex  bool
	index    int
}

// parsePath splits "k[sub][0][]" into segments, enforcing the nesting
// depth cap.
func parsePath(key string) ([]pathSeg, error) {
	var segs []pathSeg

	first := key
	rest := ""
	if i := strings.IndexByte(key, '['); i >= 0 {
		first = key[:i]
		rest = key[i:]
	}
	if first == "" {
		return nil, &Error{Message: "empty parameter name"}
	}
	segs = append(segs, pathSeg{name: first})

	for len(rest) > 0 {
		if rest[0] != '[' {
			return nil, &Error{Message: "malformed bracket expression in key: " + key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, &Error{Message: "unterminated bracket in key: " + key}
		}
		inner := rest[1:end]
		rest = rest[end+1:]

		switch {
		case inner == "":
			segs = append(segs, pathSeg{isAppend: true})
		default:
			if idx, err := strconv.Atoi(inner); err == nil {
				if idx < 0 || idx > maxIndex {
					return nil, &Error{Message: fmt.Sprintf("index %d out of range in key: %s", idx, key)}
				}
				segs = append(segs, pathSeg{isIndex: true, index: idx})
			} else {
				segs = append(segs, pathSeg{name: inner})
			}
		}

		if len(segs) > maxDepth {
			return nil, &Error{Message: "nesting depth exceeds limit of " + strconv.Itoa(maxDepth) + " in key: " + key}
		}
	}
	return segs, nil
}

// assign descends n according to segs, creating intermediate nodes as
// needed, and sets the leaf to value.
func (n *node) assign(segs []pathSeg, value string) error {
	if len(segs) == 0 {
		v := value
		n.scalar = &v
		return nil
	}

	seg := segs[0]
	rest := segs[1:]

	switch {
	case seg.isAppend:
		if len(rest) != 0 {
			return &Error{Message: "append marker [] must be the final path segment"}
		}
		n.seq = append(n.seq, value)
		return nil

	case seg.isIndex:
		if n.index == nil {
			n.index = map[int]*node{}
		}
		child, ok := n.index[seg.index]
		if !ok {
			child = newObjectNode()
			n.index[seg.index] = child
		}
		return child.assign(rest, value)

	default:
		if n.fields == nil {
			n.fields = map[string]*node{}
		}
		child, ok := n.fields[seg.name]
		if !ok {
			child = newObjectNode()
			n.fields[seg.name] = child
		}
		return child.assign(rest, value)
	}
}

// toRecord converts a node tree into the store.Record/[]any/string shape
// used elsewhere in the system. A node with scalar set is a leaf; one
// with seq/index set is an array; otherwise it's an object.
func (n *node) toRecord() store.Record {
	rec := store.Record{}
	for k, child := range n.fields {
		rec[k] = child.toValue()
	}
	return rec
}

func (n *node) toValue() any {
	switch {
	case n.scalar != nil:
		return *n.scalar
	case n.seq != nil:
		out := make([]any, len(n.seq))
		for i, v := range n.seq {
			out[i] = v
		}
		return out
	case n.index != nil:
		keys := make([]int, 0, len(n.index))
		for k := range n.index {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, n.index[k].toValue())
		}
		return out
	case len(n.fields) > 0:
		return n.toRecord()
	default:
		return ""
	}
}
