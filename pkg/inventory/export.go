package inventory

import (
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// Ansible root group name.
	ansibleRootGroup string = "all"
	// Ansible dynamic inventory metadata key.
	ansibleMetaKey string = "_meta"
)

type (
	// AnsibleGroup is an Ansible group ready to be marshalled into a JSON representation.
	AnsibleGroup struct {
		// Group children.
		Children []string `json:"children,omitempty" yaml:"children,omitempty"`
		// Hosts belonging to this group.
		Hosts []string `json:"hosts,omitempty" yaml:"hosts,omitempty"`
		// Group variables.
		Vars *VarMap `json:"vars,omitempty" yaml:"vars,omitempty"`
	}

	// AnsibleMeta holds the variables of every host of a dynamic inventory.
	AnsibleMeta struct {
		HostVars map[string]*VarMap `json:"hostvars" yaml:"hostvars"`
	}
)

// exportGroup exports a group and its descendants into a dynamic inventory map. Path holds the groups
// being exported.
func exportGroup(name string, g *yaml.Node, inventory map[string]interface{}, hostvars map[string]*VarMap, path map[*yaml.Node]bool) error {
	group := &AnsibleGroup{}

	path[g] = true
	defer delete(path, g)

	if hosts, ok := mappingGet(g, "hosts"); ok && isMapping(hosts) {
		for i := 0; i+1 < len(hosts.Content); i += 2 {
			host := hosts.Content[i].Value
			group.Hosts = append(group.Hosts, host)

			vars, err := varMapFromNode(hosts.Content[i+1])
			if err != nil {
				return varsError(err, "host '%s' in group '%s' must be a mapping", host, name)
			}

			// A host listed in several groups gets the union of its variables.
			if current, ok := hostvars[host]; ok {
				for _, k := range vars.Keys() {
					v, _ := vars.Get(k)
					current.Set(k, v)
				}
			} else {
				hostvars[host] = vars
			}
		}
	}

	if vars, ok := mappingGet(g, "vars"); ok {
		m, err := varMapFromNode(vars)
		if err != nil {
			return varsError(err, "'vars' in group '%s' must be a mapping", name)
		}
		if m.Len() > 0 {
			group.Vars = m
		}
	}

	if children, ok := mappingGet(g, "children"); ok && isMapping(children) {
		for i := 0; i+1 < len(children.Content); i += 2 {
			child := children.Content[i].Value
			group.Children = append(group.Children, child)

			cg, err := enterNode(children.Content[i+1], path)
			if err != nil {
				return err
			}

			if err := exportGroup(child, cg, inventory, hostvars, path); err != nil {
				return err
			}
		}
	}

	inventory[name] = group

	return nil
}

// ExportInventory exports the inventory in the Ansible dynamic inventory format: every group with its children,
// hosts and variables, plus the variables of every host under '_meta'.
func (i *Inventory) ExportInventory() (map[string]interface{}, error) {
	s, err := i.load()
	if err != nil {
		return nil, err
	}

	inventory := make(map[string]interface{})
	hostvars := make(map[string]*VarMap)

	all, _ := mappingGet(s.doc.Body(), ansibleRootGroup)
	if err := exportGroup(ansibleRootGroup, all, inventory, hostvars, make(map[*yaml.Node]bool)); err != nil {
		return nil, err
	}

	inventory[ansibleMetaKey] = &AnsibleMeta{HostVars: hostvars}

	return inventory, nil
}

// ExportHosts exports a map of hosts and the groups they belong to.
func (i *Inventory) ExportHosts() (map[string][]string, error) {
	s, err := i.load()
	if err != nil {
		return nil, err
	}

	hosts := make(map[string][]string, len(s.nodes))
	for name, n := range s.nodes {
		groups := []string{ansibleRootGroup, string(n.Role.Group())}
		sort.Strings(groups)

		hosts[name] = groups
	}

	return hosts, nil
}

// ExportGroups exports a map of groups and the hosts they contain, including the hosts of their descendants.
func (i *Inventory) ExportGroups() (map[string][]string, error) {
	s, err := i.load()
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]string)
	groups[ansibleRootGroup] = make([]string, 0, len(s.nodes))

	for _, g := range Groups {
		groups[string(g)] = []string{}
	}

	for _, name := range s.order {
		g := string(s.nodes[name].Role.Group())
		groups[g] = append(groups[g], name)
		groups[ansibleRootGroup] = append(groups[ansibleRootGroup], name)
	}

	for _, hosts := range groups {
		sort.Strings(hosts)
	}

	return groups, nil
}

// HostVariables returns all variables of a host entry, including the ones the node schema does not describe.
func (i *Inventory) HostVariables(hostname string) (*VarMap, error) {
	s, err := i.load()
	if err != nil {
		return nil, err
	}

	n, ok := s.nodes[hostname]
	if !ok {
		return nil, newError(ErrNotFound, "", "node '%s' not found in inventory", hostname)
	}

	value, _ := mappingGet(groupHosts(s.doc.Body(), n.Role.Group()), hostname)

	vars, err := varMapFromNode(value)
	if err != nil {
		return nil, varsError(err, "host '%s' must be a mapping", hostname)
	}

	return vars, nil
}
