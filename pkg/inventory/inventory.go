package inventory

import (
	"strings"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/NeonSludge/cluster-mgr/internal/logger"
)

// snapshot is the inventory state of a single operation. Nodes are keyed by hostname and their role
// is the only authority on group membership: groups are re-derived from roles before writing.
type snapshot struct {
	doc *Document
	// Nodes by hostname.
	nodes map[string]*Node
	// Hostnames in document order, followed by hosts added during this operation.
	order []string
	// Hosts whose entries must be re-rendered.
	dirty map[string]bool
}

// put inserts or replaces a node.
func (s *snapshot) put(n *Node) {
	if _, ok := s.nodes[n.Hostname]; !ok {
		s.order = append(s.order, n.Hostname)
	}

	s.nodes[n.Hostname] = n
	s.dirty[n.Hostname] = true
}

// addressOwner returns the hostname of the node using a Tailscale address.
func (s *snapshot) addressOwner(addr string) (string, bool) {
	for _, name := range s.order {
		if n, ok := s.nodes[name]; ok && n.TailscaleIP == addr {
			return name, true
		}
	}

	return "", false
}

// children returns the 'all.children' mapping.
func (s *snapshot) children() *yaml.Node {
	all, _ := mappingGet(s.doc.Body(), "all")
	children, _ := mappingGet(all, "children")

	return children
}

// scope returns the mapping holding the 'vars' of a scope.
func (s *snapshot) scope(scope Scope) *yaml.Node {
	if scope == ScopeAll {
		all, _ := mappingGet(s.doc.Body(), "all")
		return all
	}

	g, _ := mappingGet(s.children(), string(scope))

	return g
}

// entry returns the host entry to store for a node, reusing the current one if the node did not change.
func (s *snapshot) entry(hostname string, current *yaml.Node) (*yaml.Node, error) {
	if current != nil && !s.dirty[hostname] {
		return current, nil
	}

	n := &yaml.Node{}
	if err := n.Encode(s.nodes[hostname].HostVars()); err != nil {
		return nil, wrapError(err, ErrWriteFailed, "", "failed to render host '%s'", hostname)
	}

	if target := resolveAlias(current); isMapping(target) {
		merged := mergeEntry(n, target)
		if target != current {
			// An entry aliasing another host becomes an entry of its own.
			merged.Anchor = ""
		}
		return merged, nil
	}

	return n, nil
}

// mergeEntry lays a rendered host entry over the current one. Schema variables keep their position and
// comments, variables the schema does not own are kept as they are, and new variables are appended.
func mergeEntry(rendered, current *yaml.Node) *yaml.Node {
	merged := newMapping()
	merged.Anchor = current.Anchor
	merged.HeadComment = current.HeadComment
	merged.LineComment = current.LineComment
	merged.FootComment = current.FootComment

	for i := 0; i+1 < len(current.Content); i += 2 {
		key, old := current.Content[i], current.Content[i+1]
		if !hostVarKeys[key.Value] {
			merged.Content = append(merged.Content, key, old)
			continue
		}

		value, ok := mappingGet(rendered, key.Value)
		if !ok {
			continue
		}
		if value.Kind == resolveAlias(old).Kind {
			copyComments(value, resolveAlias(old))
		}
		merged.Content = append(merged.Content, key, keepAnchor(value, old))
	}

	for i := 0; i+1 < len(rendered.Content); i += 2 {
		if mappingIndex(merged, rendered.Content[i].Value) < 0 {
			merged.Content = append(merged.Content, rendered.Content[i], rendered.Content[i+1])
		}
	}

	return merged
}

// syncGroups rewrites the 'hosts' mapping of every group from node roles. Entries that stay in a group
// keep their position and comments, entries whose role moved elsewhere are dropped, and new or moved
// hosts are appended.
func (s *snapshot) syncGroups() error {
	root := s.doc.Body()
	keys := make(map[string]*yaml.Node)
	values := make(map[string]*yaml.Node)

	for _, group := range Groups {
		if hosts := groupHosts(root, group); hosts != nil {
			for i := 0; i+1 < len(hosts.Content); i += 2 {
				keys[hosts.Content[i].Value] = hosts.Content[i]
				values[hosts.Content[i].Value] = hosts.Content[i+1]
			}
		}
	}

	for _, group := range Groups {
		hosts := groupHosts(root, group)
		placed := make(map[string]bool)
		content := []*yaml.Node{}

		if hosts != nil {
			for i := 0; i+1 < len(hosts.Content); i += 2 {
				name := hosts.Content[i].Value
				if n, ok := s.nodes[name]; !ok || n.Role.Group() != group {
					continue
				}

				value, err := s.entry(name, values[name])
				if err != nil {
					return err
				}

				content = append(content, hosts.Content[i], value)
				placed[name] = true
			}
		}

		for _, name := range s.order {
			n, ok := s.nodes[name]
			if !ok || n.Role.Group() != group || placed[name] {
				continue
			}

			key, ok := keys[name]
			if !ok {
				key = newKey(name)
			}

			value, err := s.entry(name, values[name])
			if err != nil {
				return err
			}

			content = append(content, key, value)
		}

		if hosts == nil {
			if len(content) == 0 {
				continue
			}

			g, _ := mappingGet(s.children(), string(group))
			if hosts, _ = mappingEnsure(g, "hosts"); hosts == nil {
				return newError(ErrValidation, "", "'hosts' in group '%s' must be a mapping", group)
			}
		}

		if len(hosts.Content) == 0 && len(content) > 0 {
			hosts.Style &^= yaml.FlowStyle
		}
		hosts.Content = content
	}

	return nil
}

// load reads and validates the inventory.
func (i *Inventory) load() (*snapshot, error) {
	log := i.Logger

	log.Debugf("[%s] reading inventory file", i.Config.Path)

	doc, err := ReadDocument(i.Config.Path)
	if err != nil {
		return nil, err
	}

	nodes, err := parseTree(doc.Body(), i.Validator)
	if err != nil {
		return nil, err
	}

	s := &snapshot{
		doc:   doc,
		nodes: make(map[string]*Node, len(nodes)),
		order: make([]string, 0, len(nodes)),
		dirty: make(map[string]bool),
	}

	for _, n := range nodes {
		s.nodes[n.Hostname] = n
		s.order = append(s.order, n.Hostname)
	}

	log.Debugf("[%s] loaded %d nodes", i.Config.Path, len(nodes))

	return s, nil
}

// commit writes the snapshot back to the inventory file.
func (i *Inventory) commit(s *snapshot) error {
	cfg := i.Config
	log := i.Logger

	if err := s.syncGroups(); err != nil {
		return err
	}

	repairAliases(s.doc.Root)

	err := s.doc.Write(WriteOptions{
		Backup:        cfg.Backup.Enabled,
		BackupSuffix:  cfg.Backup.Suffix,
		ConflictCheck: cfg.Write.ConflictCheck,
		Logger:        log,
	})
	if err != nil {
		log.Errorf("[%s] inventory write failure: %v", cfg.Path, err)
		return err
	}

	log.Debugf("[%s] wrote inventory file", cfg.Path)

	return nil
}

// validScope rejects unknown scope names before any I/O happens.
func validScope(scope Scope) error {
	if scope.Valid() {
		return nil
	}

	names := make([]string, 0, len(Scopes))
	for _, s := range Scopes {
		names = append(names, string(s))
	}

	return newError(ErrInvalidScope, "Must be one of: "+strings.Join(names, ", "), "invalid scope '%s'", scope)
}

// checkNode validates a caller-supplied node and returns its canonical copy.
func (i *Inventory) checkNode(n *Node) (*Node, error) {
	if n == nil {
		return nil, newError(ErrValidation, "", "node cannot be nil")
	}

	node := n.clone()
	if err := validateNode(i.Validator, node); err != nil {
		return nil, err
	}

	return node, nil
}

// GetNodes returns all nodes, or only the nodes of a group if one is specified.
func (i *Inventory) GetNodes(group Group) ([]*Node, error) {
	if len(group) > 0 && !group.Valid() {
		return nil, newError(ErrInvalidScope, "Must be one of: control_plane, workers", "invalid group '%s'", group)
	}

	s, err := i.load()
	if err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(s.order))
	for _, name := range s.order {
		if n := s.nodes[name]; len(group) == 0 || n.Role.Group() == group {
			nodes = append(nodes, n)
		}
	}

	return nodes, nil
}

// GetNode returns a single node.
func (i *Inventory) GetNode(hostname string) (*Node, error) {
	s, err := i.load()
	if err != nil {
		return nil, err
	}

	n, ok := s.nodes[hostname]
	if !ok {
		return nil, newError(ErrNotFound, "", "node '%s' not found in inventory", hostname)
	}

	return n, nil
}

// AddNode adds a node to the group matching its role.
func (i *Inventory) AddNode(n *Node) error {
	log := i.Logger

	node, err := i.checkNode(n)
	if err != nil {
		return err
	}

	log.Infof("[%s] adding node to inventory", node.Hostname)

	s, err := i.load()
	if err != nil {
		return err
	}

	if _, ok := s.nodes[node.Hostname]; ok {
		log.Errorf("[%s] node already exists in inventory", node.Hostname)
		return newError(ErrDuplicateHostname,
			"Use 'cluster-mgr remove-node "+node.Hostname+"' to remove it first, or use a different hostname",
			"node '%s' already exists in inventory", node.Hostname)
	}

	if owner, ok := s.addressOwner(node.TailscaleIP); ok {
		log.Errorf("[%s] tailscale IP %s already in use by %s", node.Hostname, node.TailscaleIP, owner)
		return newError(ErrDuplicateAddress,
			"Each node must have a unique Tailscale IP address",
			"tailscale IP '%s' is already in use by node '%s'", node.TailscaleIP, owner)
	}

	s.put(node)

	if err := i.commit(s); err != nil {
		return err
	}

	log.Infof("[%s] added node to group %s", node.Hostname, node.Role.Group())

	return nil
}

// RemoveNode removes a node from the inventory.
func (i *Inventory) RemoveNode(hostname string) error {
	log := i.Logger

	s, err := i.load()
	if err != nil {
		return err
	}

	if _, ok := s.nodes[hostname]; !ok {
		return newError(ErrNotFound,
			"Run 'cluster-mgr list-nodes' to see the nodes in the inventory",
			"node '%s' not found in inventory", hostname)
	}

	delete(s.nodes, hostname)

	if err := i.commit(s); err != nil {
		return err
	}

	log.Infof("[%s] removed node from inventory", hostname)

	return nil
}

// UpdateNode replaces an existing node. A role change moves the node to the group of its new role.
func (i *Inventory) UpdateNode(n *Node) error {
	log := i.Logger

	node, err := i.checkNode(n)
	if err != nil {
		return err
	}

	s, err := i.load()
	if err != nil {
		return err
	}

	current, ok := s.nodes[node.Hostname]
	if !ok {
		return newError(ErrNotFound,
			"Use 'cluster-mgr add-node' to add it",
			"node '%s' not found in inventory", node.Hostname)
	}

	if owner, ok := s.addressOwner(node.TailscaleIP); ok && owner != node.Hostname {
		return newError(ErrDuplicateAddress,
			"Each node must have a unique Tailscale IP address",
			"tailscale IP '%s' is already in use by node '%s'", node.TailscaleIP, owner)
	}

	s.put(node)

	if err := i.commit(s); err != nil {
		return err
	}

	if current.Role != node.Role {
		log.Infof("[%s] moved node from group %s to group %s", node.Hostname, current.Role.Group(), node.Role.Group())
	} else {
		log.Infof("[%s] updated node", node.Hostname)
	}

	return nil
}

// GetVars returns the variables of a scope. The returned map is owned by the caller: nested values may be
// modified and stored back with SetVar on their top-level key.
func (i *Inventory) GetVars(scope Scope) (*VarMap, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}

	s, err := i.load()
	if err != nil {
		return nil, err
	}

	vars, ok := mappingGet(s.scope(scope), "vars")
	if !ok {
		return NewVarMap(), nil
	}

	m, err := varMapFromNode(vars)
	if err != nil {
		return nil, varsError(err, "'vars' in scope '%s' must be a mapping", scope)
	}

	return m, nil
}

// SetVar sets a top-level variable of a scope, replacing any previous value.
func (i *Inventory) SetVar(key string, value *Value, scope Scope) error {
	log := i.Logger

	if err := validScope(scope); err != nil {
		return err
	}

	if len(key) == 0 {
		return newError(ErrValidation, "", "variable key cannot be empty")
	}

	if value == nil {
		value = NullValue()
	}

	s, err := i.load()
	if err != nil {
		return err
	}

	vars, ok := mappingEnsure(s.scope(scope), "vars")
	if !ok {
		return newError(ErrValidation, "", "'vars' in scope '%s' must be a mapping", scope)
	}

	n := value.node()
	if j := mappingIndex(vars, key); j >= 0 {
		old := vars.Content[j+1]
		if value.src == nil {
			keepFormat(n, resolveAlias(old), false)
		}
		n = keepAnchor(n, old)
	}
	mappingSet(vars, key, n)

	if err := i.commit(s); err != nil {
		return err
	}

	log.Infof("[%s] set variable '%s'", scope, key)

	return nil
}

// New creates an instance of the inventory with user-supplied configuration.
func New(cfg *Config) (*Inventory, error) {
	if cfg == nil {
		return nil, errors.New("inventory configuration is nil")
	}

	// Initialize logger.
	if cfg.Logger == nil {
		l, err := logger.New("info", "")
		if err != nil {
			return nil, errors.Wrap(err, "logger initialization failure")
		}
		cfg.Logger = l
	}

	i := &Inventory{
		Config:    cfg,
		Logger:    cfg.Logger,
		Validator: NewValidator(),
	}

	return i, nil
}

// NewDefault creates an instance of the inventory with the default configuration.
func NewDefault() (*Inventory, error) {
	cfg := &Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "defaults initialization failure")
	}

	return New(cfg)
}
