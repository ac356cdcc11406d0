package inventory

import (
	"gopkg.in/yaml.v3"
)

// resolveAlias follows alias nodes to their anchors.
func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}

	return n
}

func isMapping(n *yaml.Node) bool {
	n = resolveAlias(n)
	return n != nil && n.Kind == yaml.MappingNode
}

func isNull(n *yaml.Node) bool {
	n = resolveAlias(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func newKey(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
}

// mappingIndex returns the content index of the key node for key in mapping m, or -1.
func mappingIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}

	return -1
}

// mappingGet returns the value stored under key in mapping m.
func mappingGet(m *yaml.Node, key string) (*yaml.Node, bool) {
	m = resolveAlias(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, false
	}

	i := mappingIndex(m, key)
	if i < 0 {
		return nil, false
	}

	return resolveAlias(m.Content[i+1]), true
}

// mappingSet stores value under key in mapping m, replacing an existing value in place.
func mappingSet(m *yaml.Node, key string, value *yaml.Node) {
	if i := mappingIndex(m, key); i >= 0 {
		m.Content[i+1] = value
		return
	}

	// An empty flow mapping ('{}') becomes a block mapping once it has content.
	if len(m.Content) == 0 {
		m.Style &^= yaml.FlowStyle
	}

	m.Content = append(m.Content, newKey(key), value)
}

// mappingEnsure returns the mapping stored under key in m, creating it if the key is absent or null.
// It returns false if the key holds a non-mapping value.
func mappingEnsure(m *yaml.Node, key string) (*yaml.Node, bool) {
	if v, ok := mappingGet(m, key); ok {
		if isMapping(v) {
			return v, true
		}
		if !isNull(v) {
			return nil, false
		}
	}

	v := newMapping()
	mappingSet(m, key, v)

	return v, true
}

// copyComments carries the comments of src over to dst. For mappings, comments of keys present
// in both nodes are carried over as well.
func copyComments(dst, src *yaml.Node) {
	if dst == nil || src == nil {
		return
	}

	dst.HeadComment = src.HeadComment
	dst.LineComment = src.LineComment
	dst.FootComment = src.FootComment

	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i+1 < len(dst.Content); i += 2 {
		j := mappingIndex(src, dst.Content[i].Value)
		if j < 0 {
			continue
		}

		copyComments(dst.Content[i], src.Content[j])
		if dst.Content[i+1].Kind == src.Content[j+1].Kind {
			copyComments(dst.Content[i+1], src.Content[j+1])
		}
	}
}

// keepAnchor returns n carrying the anchor of the node it replaces. A copy is returned so that nodes
// shared with other values keep their own anchors.
func keepAnchor(n, old *yaml.Node) *yaml.Node {
	if old == nil || old.Kind == yaml.AliasNode || len(old.Anchor) == 0 || n == old || n.Anchor == old.Anchor {
		return n
	}

	c := *n
	c.Anchor = old.Anchor

	return &c
}

// copyNode returns a deep copy of n. Alias nodes are copied as aliases.
func copyNode(n *yaml.Node) *yaml.Node {
	c := *n

	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = copyNode(child)
		}
	}

	return &c
}

// anchorScope tracks anchors in document order.
type anchorScope struct {
	// Latest node defining each anchor.
	defined map[string]*yaml.Node
	// Nodes that replaced aliases.
	copies []*yaml.Node
	// Nodes that aliases refer to.
	used map[*yaml.Node]bool
}

// repairAliases points every alias at the node its anchor names at that position in the document. An alias
// whose anchor was dropped, or moved after it, is replaced with a copy of the node it referred to.
func repairAliases(root *yaml.Node) {
	s := &anchorScope{
		defined: make(map[string]*yaml.Node),
		used:    make(map[*yaml.Node]bool),
	}

	s.walk(root)

	for _, c := range s.copies {
		if !s.used[c] {
			c.Anchor = ""
		}
	}
}

func (s *anchorScope) walk(n *yaml.Node) {
	if n == nil {
		return
	}

	if n.Kind == yaml.AliasNode {
		if d, ok := s.defined[n.Value]; ok {
			n.Alias = d
			s.used[d] = true
			return
		}
		if n.Alias == nil {
			return
		}

		c := copyNode(n.Alias)
		c.Anchor = n.Value
		c.HeadComment = n.HeadComment
		c.LineComment = n.LineComment
		c.FootComment = n.FootComment

		*n = *c
		s.copies = append(s.copies, n)
	}

	if len(n.Anchor) > 0 {
		s.defined[n.Anchor] = n
	}

	for _, c := range n.Content {
		s.walk(c)
	}
}
