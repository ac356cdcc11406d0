package inventory

import (
	"github.com/go-playground/validator/v10"
)

type (
	// Inventory implements the node inventory and scoped configuration store backed by an Ansible YAML inventory.
	Inventory struct {
		// Inventory configuration.
		Config *Config
		// Inventory logger.
		Logger Logger
		// Node validator.
		Validator *validator.Validate
	}

	// Config represents the main inventory configuration.
	Config struct {
		// Path to the Ansible inventory file.
		Path string `mapstructure:"path" default:"ansible/inventory/hosts.yml"`
		// Backup configuration.
		Backup struct {
			// Copy the previous inventory file aside before every write.
			Enabled bool `mapstructure:"enabled" default:"true"`
			// Suffix appended to the inventory path to form the backup path.
			Suffix string `mapstructure:"suffix" default:".backup"`
		} `mapstructure:"backup"`
		// Write configuration.
		Write struct {
			// Refuse to write if the file changed on disk since it was read.
			ConflictCheck bool `mapstructure:"conflictcheck" default:"true"`
		} `mapstructure:"write"`
		// Inventory logger.
		Logger Logger `mapstructure:"-"`
	}

	// Logger provides a logging interface for the inventory.
	Logger interface {
		Info(args ...interface{})
		Infof(template string, args ...interface{})
		Warn(args ...interface{})
		Warnf(template string, args ...interface{})
		Error(args ...interface{})
		Errorf(template string, args ...interface{})
		Debug(args ...interface{})
		Debugf(template string, args ...interface{})
	}

	// Role is the cluster role of a node.
	Role string

	// Group is an Ansible group holding the nodes of one role.
	Group string

	// Scope is a namespace for inventory variables.
	Scope string

	// TaintEffect is the effect of a Kubernetes node taint.
	TaintEffect string

	// Node represents a single cluster member.
	Node struct {
		// Node host name.
		Hostname string `validate:"required,max=253,hostname_rfc1123" yaml:"hostname" json:"hostname"`
		// Address used by Ansible to reach the node.
		AnsibleHost string `validate:"required,notblank" yaml:"ansible_host" json:"ansible_host"`
		// Tailscale address of the node.
		TailscaleIP string `validate:"required,ip" yaml:"tailscale_ip" json:"tailscale_ip"`
		// Cluster role.
		Role Role `validate:"required,oneof=control-plane worker" yaml:"role" json:"role"`
		// CPU reserved for local processes.
		ReservedCPU string `yaml:"reserved_cpu,omitempty" json:"reserved_cpu,omitempty"`
		// Memory reserved for local processes.
		ReservedMemory string `yaml:"reserved_memory,omitempty" json:"reserved_memory,omitempty"`
		// Whether the node has a GPU.
		GPU bool `yaml:"gpu" json:"gpu"`
		// Kubernetes node labels.
		Labels map[string]string `yaml:"node_labels" json:"node_labels"`
		// Kubernetes node taints.
		Taints []Taint `validate:"dive" yaml:"node_taints" json:"node_taints"`
	}

	// Taint represents a Kubernetes node taint.
	Taint struct {
		Key    string      `yaml:"key" json:"key"`
		Value  string      `yaml:"value" json:"value"`
		Effect TaintEffect `validate:"oneof=NoSchedule PreferNoSchedule NoExecute" yaml:"effect" json:"effect"`
	}

	// HostVars is the storage form of a node: the variables of its entry under a group's 'hosts' key.
	HostVars struct {
		AnsibleHost    string            `yaml:"ansible_host"`
		TailscaleIP    string            `yaml:"tailscale_ip"`
		ReservedCPU    string            `yaml:"reserved_cpu,omitempty"`
		ReservedMemory string            `yaml:"reserved_memory,omitempty"`
		GPU            bool              `yaml:"gpu,omitempty"`
		Labels         map[string]string `yaml:"node_labels,omitempty"`
		Taints         []Taint           `yaml:"node_taints,omitempty"`
	}
)

const (
	RoleControlPlane Role = "control-plane"
	RoleWorker       Role = "worker"

	GroupControlPlane Group = "control_plane"
	GroupWorkers      Group = "workers"

	ScopeAll          Scope = "all"
	ScopeControlPlane Scope = "control_plane"
	ScopeWorkers      Scope = "workers"

	EffectNoSchedule       TaintEffect = "NoSchedule"
	EffectPreferNoSchedule TaintEffect = "PreferNoSchedule"
	EffectNoExecute        TaintEffect = "NoExecute"
)

var (
	// Groups lists the required inventory groups in search order.
	Groups = []Group{GroupControlPlane, GroupWorkers}
	// Scopes lists the valid variable scopes.
	Scopes = []Scope{ScopeAll, ScopeControlPlane, ScopeWorkers}
)

// Group returns the inventory group holding nodes of this role.
func (r Role) Group() Group {
	if r == RoleControlPlane {
		return GroupControlPlane
	}

	return GroupWorkers
}

// Role returns the role of the nodes held by this group.
func (g Group) Role() Role {
	if g == GroupControlPlane {
		return RoleControlPlane
	}

	return RoleWorker
}

// Valid reports whether g is one of the required groups.
func (g Group) Valid() bool {
	return g == GroupControlPlane || g == GroupWorkers
}

// Valid reports whether s is one of the variable scopes.
func (s Scope) Valid() bool {
	return s == ScopeAll || s == ScopeControlPlane || s == ScopeWorkers
}
