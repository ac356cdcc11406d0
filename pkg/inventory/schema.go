package inventory

import (
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Host variables every host entry must define.
	requiredHostVars = []string{"ansible_host", "tailscale_ip"}
	// Host variables owned by the node schema. Other host variables are left untouched on write.
	hostVarKeys = map[string]bool{
		"ansible_host":    true,
		"tailscale_ip":    true,
		"reserved_cpu":    true,
		"reserved_memory": true,
		"gpu":             true,
		"node_labels":     true,
		"node_taints":     true,
	}
)

// ValidateDocument checks the inventory structure, the required groups and every host entry.
// The document is not modified.
func ValidateDocument(doc *Document) error {
	_, err := parseTree(doc.Body(), defaultValidator)
	return err
}

// groupHosts returns the 'hosts' mapping of a group, or nil if the group has none.
func groupHosts(root *yaml.Node, group Group) *yaml.Node {
	all, _ := mappingGet(root, "all")
	children, _ := mappingGet(all, "children")
	g, _ := mappingGet(children, string(group))

	hosts, ok := mappingGet(g, "hosts")
	if !ok || !isMapping(hosts) {
		return nil
	}

	return hosts
}

// parseTree validates an inventory tree and returns its nodes in document order.
func parseTree(root *yaml.Node, v *validator.Validate) ([]*Node, error) {
	if !isMapping(root) {
		return nil, newError(ErrValidation, "", "inventory must be a mapping")
	}

	all, ok := mappingGet(root, "all")
	if !ok {
		return nil, newError(ErrValidation, "", "inventory must have 'all' group")
	}
	if !isMapping(all) {
		return nil, newError(ErrValidation, "", "'all' group must be a mapping")
	}

	children, ok := mappingGet(all, "children")
	if !ok {
		return nil, newError(ErrValidation, "", "'all' group must have 'children'")
	}
	if !isMapping(children) {
		return nil, newError(ErrValidation, "", "'children' must be a mapping")
	}

	nodes := []*Node{}
	seen := make(map[string]Group)
	addrs := make(map[string]string)

	for _, group := range Groups {
		g, ok := mappingGet(children, string(group))
		if !ok {
			return nil, newError(ErrValidation, "", "missing required group: %s", group)
		}
		if !isMapping(g) {
			return nil, newError(ErrValidation, "", "group '%s' must be a mapping", group)
		}

		hosts, ok := mappingGet(g, "hosts")
		if !ok || isNull(hosts) {
			continue
		}
		if !isMapping(hosts) {
			return nil, newError(ErrValidation, "", "'hosts' in group '%s' must be a mapping", group)
		}

		for i := 0; i+1 < len(hosts.Content); i += 2 {
			hostname := hosts.Content[i].Value

			n, err := decodeHost(hostname, resolveAlias(hosts.Content[i+1]), group, v)
			if err != nil {
				return nil, err
			}

			if other, ok := seen[hostname]; ok {
				if other == group {
					return nil, newError(ErrValidation, "A host may only appear once in the inventory",
						"host '%s' is defined twice in group '%s'", hostname, group)
				}
				return nil, newError(ErrValidation, "A host may only appear once in the inventory",
					"host '%s' appears in both group '%s' and group '%s'", hostname, other, group)
			}
			if other, ok := addrs[n.TailscaleIP]; ok {
				return nil, newError(ErrValidation, "Each node must have a unique Tailscale IP address",
					"host '%s' in group '%s' uses tailscale_ip '%s' already assigned to host '%s'", hostname, group, n.TailscaleIP, other)
			}

			seen[hostname] = group
			addrs[n.TailscaleIP] = hostname
			nodes = append(nodes, n)
		}
	}

	return nodes, nil
}

// decodeHost validates a single host entry and builds its node. The role is derived from the group.
func decodeHost(hostname string, value *yaml.Node, group Group, v *validator.Validate) (*Node, error) {
	if !isMapping(value) {
		return nil, newError(ErrValidation, "", "host '%s' in group '%s' must be a mapping", hostname, group)
	}

	for _, field := range requiredHostVars {
		if _, ok := mappingGet(value, field); !ok {
			return nil, newError(ErrValidation, "", "host '%s' in group '%s' missing required field: %s", hostname, group, field)
		}
	}

	vars := HostVars{}
	if err := value.Decode(&vars); err != nil {
		return nil, wrapError(err, ErrValidation, "", "host '%s' in group '%s' validation failed", hostname, group)
	}

	n := &Node{
		Hostname:       hostname,
		AnsibleHost:    vars.AnsibleHost,
		TailscaleIP:    vars.TailscaleIP,
		Role:           group.Role(),
		ReservedCPU:    vars.ReservedCPU,
		ReservedMemory: vars.ReservedMemory,
		GPU:            vars.GPU,
		Labels:         vars.Labels,
		Taints:         vars.Taints,
	}

	if err := validateNode(v, n); err != nil {
		return nil, wrapError(err, ErrValidation, "", "host '%s' in group '%s' validation failed", hostname, group)
	}

	return n, nil
}
