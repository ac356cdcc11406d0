package inventory

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

var kindNames = map[ValueKind]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindList:   "list",
	KindMap:    "map",
}

func (k ValueKind) String() string {
	return kindNames[k]
}

type (
	// Value is an inventory variable value: a scalar, a list of values or an ordered map of values.
	Value struct {
		kind ValueKind
		str  string
		num  int64
		flt  float64
		b    bool
		list []*Value
		m    *VarMap
		// Node the value was read from, used to keep formatting and comments on write.
		src *yaml.Node
	}

	// VarMap is an insertion-ordered map of variable names to values.
	VarMap struct {
		keys   []string
		values map[string]*Value
		// Key nodes the entries were read from.
		keyNodes map[string]*yaml.Node
		src      *yaml.Node
	}
)

func NullValue() *Value                { return &Value{kind: KindNull} }
func StringValue(s string) *Value      { return &Value{kind: KindString, str: s} }
func IntValue(i int64) *Value          { return &Value{kind: KindInt, num: i} }
func FloatValue(f float64) *Value      { return &Value{kind: KindFloat, flt: f} }
func BoolValue(b bool) *Value          { return &Value{kind: KindBool, b: b} }
func ListValue(items ...*Value) *Value { return &Value{kind: KindList, list: items} }

// MapValue wraps a variable map. A nil map yields an empty one.
func MapValue(m *VarMap) *Value {
	if m == nil {
		m = NewVarMap()
	}

	return &Value{kind: KindMap, m: m}
}

// ValueOf converts a Go value (as produced by encoding/json or YAML decoding into interface{}) into a Value.
// Map keys are sorted.
func ValueOf(x interface{}) (*Value, error) {
	switch x := x.(type) {
	case nil:
		return NullValue(), nil
	case *Value:
		return x, nil
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case int32:
		return IntValue(int64(x)), nil
	case uint:
		return IntValue(int64(x)), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, errors.Wrap(err, "invalid number")
		}
		return FloatValue(f), nil
	case []interface{}:
		items := make([]*Value, 0, len(x))
		for _, item := range x {
			v, err := ValueOf(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return ListValue(items...), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		m := NewVarMap()
		for _, k := range keys {
			v, err := ValueOf(x[k])
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return MapValue(m), nil
	default:
		return nil, errors.Errorf("unsupported value type: %s", reflect.TypeOf(x))
	}
}

// ValueFromYAML parses a YAML (or JSON) document into a Value, keeping mapping key order.
func ValueFromYAML(data []byte) (*Value, error) {
	doc := &yaml.Node{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, "value parsing error")
	}

	if len(doc.Content) == 0 {
		return NullValue(), nil
	}

	return valueFromNode(doc.Content[0])
}

func (v *Value) Kind() ValueKind { return v.kind }
func (v *Value) Str() string     { return v.str }
func (v *Value) Int() int64      { return v.num }
func (v *Value) Float() float64  { return v.flt }
func (v *Value) Bool() bool      { return v.b }
func (v *Value) List() []*Value  { return v.list }
func (v *Value) Map() *VarMap    { return v.m }

// Equal reports whether two values hold the same data.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}

	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindFloat:
		return v.flt == o.flt || (math.IsNaN(v.flt) && math.IsNaN(o.flt))
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	}

	return true
}

// Text returns a plain text rendering of a scalar value.
func (v *Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return formatFloat(v.flt)
	case KindBool:
		return strconv.FormatBool(v.b)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(data)
}

// MarshalYAML implements a custom YAML Marshaller for values.
func (v *Value) MarshalYAML() (interface{}, error) {
	return v.node(), nil
}

// MarshalJSON implements a custom JSON Marshaller for values. Map key order is kept.
func (v *Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return json.Marshal(v.num)
	case KindFloat:
		if math.IsInf(v.flt, 0) || math.IsNaN(v.flt) {
			return json.Marshal(formatFloat(v.flt))
		}
		return json.Marshal(v.flt)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		buf := new(bytes.Buffer)
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		return v.m.MarshalJSON()
	}

	return nil, errors.Errorf("unknown value kind: %d", v.kind)
}

// NewVarMap creates an empty variable map.
func NewVarMap() *VarMap {
	return &VarMap{
		values:   make(map[string]*Value),
		keyNodes: make(map[string]*yaml.Node),
	}
}

func (m *VarMap) Len() int { return len(m.keys) }

// Keys returns the variable names in order.
func (m *VarMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Get returns the value of a variable.
func (m *VarMap) Get(key string) (*Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set overwrites a variable, keeping its position if it already exists.
func (m *VarMap) Set(key string, v *Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}

	m.values[key] = v
}

// Delete removes a variable.
func (m *VarMap) Delete(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}

	delete(m.values, key)
	delete(m.keyNodes, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}

	return true
}

// Lookup follows a path of nested map keys.
func (m *VarMap) Lookup(path ...string) (*Value, bool) {
	if len(path) == 0 {
		return nil, false
	}

	cur := m
	for i, key := range path {
		v, ok := cur.Get(key)
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		if v.kind != KindMap {
			return nil, false
		}
		cur = v.m
	}

	return nil, false
}

// SetPath sets a nested variable, creating intermediate maps as needed.
func (m *VarMap) SetPath(path []string, v *Value) error {
	if len(path) == 0 {
		return newError(ErrValidation, "", "variable key cannot be empty")
	}

	cur := m
	for _, key := range path[:len(path)-1] {
		next, ok := cur.Get(key)
		if !ok {
			next = MapValue(nil)
			cur.Set(key, next)
		} else if next.kind != KindMap {
			return newError(ErrValidation, "", "cannot set nested key: '%s' is not a mapping", key)
		}
		cur = next.m
	}

	cur.Set(path[len(path)-1], v)

	return nil
}

// Equal reports whether two maps hold the same entries in the same order.
func (m *VarMap) Equal(o *VarMap) bool {
	if len(m.keys) != len(o.keys) {
		return false
	}

	for i, k := range m.keys {
		if o.keys[i] != k || !m.values[k].Equal(o.values[k]) {
			return false
		}
	}

	return true
}

// MarshalYAML implements a custom YAML Marshaller for variable maps.
func (m *VarMap) MarshalYAML() (interface{}, error) {
	return m.node(), nil
}

// MarshalJSON implements a custom JSON Marshaller for variable maps. Key order is kept.
func (m *VarMap) MarshalJSON() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte('{')

	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		data, err := m.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// varMapFromNode converts a YAML mapping into a variable map.
func varMapFromNode(n *yaml.Node) (*VarMap, error) {
	return mapFromNode(n, make(map[*yaml.Node]bool))
}

// valueFromNode converts a YAML node into a value.
func valueFromNode(n *yaml.Node) (*Value, error) {
	return convertNode(n, make(map[*yaml.Node]bool))
}

// varsError describes a failure to convert variables. Recursive aliases are reported as they are.
func varsError(err error, format string, args ...interface{}) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return wrapError(err, ErrValidation, "", format, args...)
}

// enterNode resolves n, failing if it aliases a node that is still being converted.
func enterNode(n *yaml.Node, path map[*yaml.Node]bool) (*yaml.Node, error) {
	target := resolveAlias(n)
	if target != nil && path[target] {
		return nil, newError(ErrParse, "An alias cannot refer to a node that contains it",
			"recursive alias '*%s' at line %d", n.Value, n.Line)
	}

	return target, nil
}

func mapFromNode(n *yaml.Node, path map[*yaml.Node]bool) (*VarMap, error) {
	n, err := enterNode(n, path)
	if err != nil {
		return nil, err
	}

	m := NewVarMap()
	m.src = n

	if isNull(n) {
		return m, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errors.Errorf("line %d: expected a mapping", n.Line)
	}

	path[n] = true
	defer delete(path, n)

	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value

		v, err := convertNode(n.Content[i+1], path)
		if err != nil {
			return nil, errors.Wrapf(err, "key '%s'", key)
		}

		m.Set(key, v)
		m.keyNodes[key] = n.Content[i]
	}

	return m, nil
}

func convertNode(n *yaml.Node, path map[*yaml.Node]bool) (*Value, error) {
	n, err := enterNode(n, path)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return NullValue(), nil
	}

	var v *Value

	switch n.Kind {
	case yaml.MappingNode:
		m, err := mapFromNode(n, path)
		if err != nil {
			return nil, err
		}
		v = MapValue(m)
	case yaml.SequenceNode:
		path[n] = true
		defer delete(path, n)

		items := make([]*Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := convertNode(c, path)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		v = ListValue(items...)
	case yaml.ScalarNode:
		v = scalarFromNode(n)
	default:
		return nil, errors.Errorf("line %d: unsupported node kind", n.Line)
	}

	v.src = n

	return v, nil
}

func scalarFromNode(n *yaml.Node) *Value {
	switch n.ShortTag() {
	case "!!null":
		return NullValue()
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return BoolValue(b)
		}
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return IntValue(i)
		}
		var f float64
		if err := n.Decode(&f); err == nil {
			return FloatValue(f)
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err == nil {
			return FloatValue(f)
		}
	}

	return StringValue(n.Value)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}

	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}

	return s
}

// keepFormat carries the comments of src over to dst, and its style if style is set.
func keepFormat(dst, src *yaml.Node, style bool) {
	dst.HeadComment = src.HeadComment
	dst.LineComment = src.LineComment
	dst.FootComment = src.FootComment

	if !style {
		return
	}

	dst.Style = src.Style

	// An empty flow collection ('{}', '[]') is written in block style once it has content.
	if len(src.Content) == 0 && len(dst.Content) > 0 {
		dst.Style &^= yaml.FlowStyle
	}
}

// node renders the value as a YAML node, reusing the formatting of the node it was read from.
func (v *Value) node() *yaml.Node {
	switch v.kind {
	case KindMap:
		return v.m.node()
	case KindList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.list {
			n.Content = append(n.Content, item.node())
		}
		if v.src != nil && v.src.Kind == yaml.SequenceNode {
			keepFormat(n, v.src, true)
		}
		return n
	}

	if v.src == nil || v.src.Kind != yaml.ScalarNode {
		return v.scalarNode()
	}

	old := scalarFromNode(v.src)
	if old.Equal(v) {
		return v.src
	}

	n := v.scalarNode()
	keepFormat(n, v.src, old.kind == v.kind && n.Style == 0)

	return n
}

func (v *Value) scalarNode() *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}

	switch v.kind {
	case KindNull:
		n.Tag, n.Value = "!!null", "null"
	case KindString:
		n.Tag, n.Value = "!!str", v.str
		if strings.Contains(v.str, "\n") {
			n.Style = yaml.LiteralStyle
		}
	case KindInt:
		n.Tag, n.Value = "!!int", strconv.FormatInt(v.num, 10)
	case KindFloat:
		n.Tag, n.Value = "!!float", formatFloat(v.flt)
	case KindBool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(v.b)
	}

	return n
}

func (m *VarMap) node() *yaml.Node {
	n := newMapping()

	for _, k := range m.keys {
		key, ok := m.keyNodes[k]
		if !ok {
			key = newKey(k)
		}
		n.Content = append(n.Content, key, m.values[k].node())
	}

	if m.src != nil && m.src.Kind == yaml.MappingNode {
		keepFormat(n, m.src, true)
	}

	return n
}
