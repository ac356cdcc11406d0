package inventory

import (
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func validNode() Node {
	return Node{
		Hostname:    "worker-1",
		AnsibleHost: "100.64.0.10",
		TailscaleIP: "100.64.0.10",
		Role:        RoleWorker,
	}
}

func TestNewNode(t *testing.T) {
	type args struct {
		mutate func(n *Node)
	}
	tests := []struct {
		name    string
		args    args
		want    func(n *Node)
		wantErr bool
	}{
		{
			name: "valid",
			args: args{mutate: func(n *Node) {}},
			want: func(n *Node) {},
		},
		{
			name: "valid-fqdn",
			args: args{mutate: func(n *Node) { n.Hostname = "worker-1.tailnet.ts.net" }},
			want: func(n *Node) { n.Hostname = "worker-1.tailnet.ts.net" },
		},
		{
			name: "valid-ipv6-canonical",
			args: args{mutate: func(n *Node) { n.TailscaleIP = "FD7A:115C:A1E0:0:0:0:0:1" }},
			want: func(n *Node) { n.TailscaleIP = "fd7a:115c:a1e0::1" },
		},
		{
			name: "valid-full",
			args: args{mutate: func(n *Node) {
				n.Role = RoleControlPlane
				n.AnsibleHost = "192.168.1.10"
				n.ReservedCPU = "2"
				n.ReservedMemory = "4Gi"
				n.GPU = true
				n.Labels = map[string]string{"tier": "gpu"}
				n.Taints = []Taint{{Key: "gpu", Value: "true", Effect: EffectNoSchedule}}
			}},
			want: func(n *Node) {
				n.Role = RoleControlPlane
				n.AnsibleHost = "192.168.1.10"
				n.ReservedCPU = "2"
				n.ReservedMemory = "4Gi"
				n.GPU = true
				n.Labels = map[string]string{"tier": "gpu"}
				n.Taints = []Taint{{Key: "gpu", Value: "true", Effect: EffectNoSchedule}}
			},
		},
		{
			name:    "empty-hostname",
			args:    args{mutate: func(n *Node) { n.Hostname = "" }},
			wantErr: true,
		},
		{
			name:    "underscore-hostname",
			args:    args{mutate: func(n *Node) { n.Hostname = "worker_1" }},
			wantErr: true,
		},
		{
			name:    "leading-hyphen-hostname",
			args:    args{mutate: func(n *Node) { n.Hostname = "-worker" }},
			wantErr: true,
		},
		{
			name:    "trailing-hyphen-hostname",
			args:    args{mutate: func(n *Node) { n.Hostname = "worker-" }},
			wantErr: true,
		},
		{
			name:    "long-label-hostname",
			args:    args{mutate: func(n *Node) { n.Hostname = strings.Repeat("a", 64) }},
			wantErr: true,
		},
		{
			name:    "long-hostname",
			args:    args{mutate: func(n *Node) { n.Hostname = strings.Repeat("abcdefgh.", 28) + "ab" }},
			wantErr: true,
		},
		{
			name:    "blank-ansible-host",
			args:    args{mutate: func(n *Node) { n.AnsibleHost = "   " }},
			wantErr: true,
		},
		{
			name:    "invalid-ip",
			args:    args{mutate: func(n *Node) { n.TailscaleIP = "300.64.0.1" }},
			wantErr: true,
		},
		{
			name:    "hostname-as-ip",
			args:    args{mutate: func(n *Node) { n.TailscaleIP = "worker-1" }},
			wantErr: true,
		},
		{
			name:    "invalid-role",
			args:    args{mutate: func(n *Node) { n.Role = "master" }},
			wantErr: true,
		},
		{
			name:    "invalid-taint-effect",
			args:    args{mutate: func(n *Node) { n.Taints = []Taint{{Key: "gpu", Value: "true", Effect: "Sometimes"}} }},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validNode()
			tt.args.mutate(&in)

			got, err := NewNode(in)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewNode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("NewNode() error = %v, want ErrValidation", err)
				}
				return
			}

			want := validNode()
			tt.want(&want)
			if want.Labels == nil {
				want.Labels = map[string]string{}
			}
			if want.Taints == nil {
				want.Taints = []Taint{}
			}

			if !reflect.DeepEqual(got, &want) {
				t.Errorf("NewNode() = %+v, want %+v", got, &want)
			}
		})
	}
}

func TestNewNode_ErrorMessage(t *testing.T) {
	in := validNode()
	in.Hostname = "worker_1"
	in.TailscaleIP = "not-an-ip"

	_, err := NewNode(in)
	if err == nil {
		t.Fatal("NewNode() error = nil, want an error")
	}

	msg := err.Error()
	for _, part := range []string{"hostname 'worker_1'", "tailscale_ip 'not-an-ip'", "valid IPv4 or IPv6 address"} {
		if !strings.Contains(msg, part) {
			t.Errorf("NewNode() error = %q, want it to contain %q", msg, part)
		}
	}
}

func TestNewTaint(t *testing.T) {
	type args struct {
		key    string
		value  string
		effect TaintEffect
	}
	tests := []struct {
		name    string
		args    args
		want    Taint
		wantErr bool
	}{
		{
			name: "no-schedule",
			args: args{key: "gpu", value: "true", effect: EffectNoSchedule},
			want: Taint{Key: "gpu", Value: "true", Effect: EffectNoSchedule},
		},
		{
			name: "prefer-no-schedule",
			args: args{key: "dedicated", value: "db", effect: EffectPreferNoSchedule},
			want: Taint{Key: "dedicated", Value: "db", Effect: EffectPreferNoSchedule},
		},
		{
			name: "no-execute",
			args: args{key: "maintenance", value: "", effect: EffectNoExecute},
			want: Taint{Key: "maintenance", Value: "", Effect: EffectNoExecute},
		},
		{
			name:    "lowercase-effect",
			args:    args{key: "gpu", value: "true", effect: "noschedule"},
			wantErr: true,
		},
		{
			name:    "empty-effect",
			args:    args{key: "gpu", value: "true", effect: ""},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTaint(tt.args.key, tt.args.value, tt.args.effect)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTaint() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NewTaint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNode_HostVars(t *testing.T) {
	n, err := NewNode(Node{
		Hostname:       "gpu-1",
		AnsibleHost:    "192.168.1.20",
		TailscaleIP:    "100.64.0.20",
		Role:           RoleWorker,
		ReservedMemory: "8Gi",
		GPU:            true,
		Labels:         map[string]string{"tier": "gpu"},
		Taints:         []Taint{{Key: "gpu", Value: "true", Effect: EffectNoSchedule}},
	})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}

	vars := n.HostVars()
	want := HostVars{
		AnsibleHost:    "192.168.1.20",
		TailscaleIP:    "100.64.0.20",
		ReservedMemory: "8Gi",
		GPU:            true,
		Labels:         map[string]string{"tier": "gpu"},
		Taints:         []Taint{{Key: "gpu", Value: "true", Effect: EffectNoSchedule}},
	}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("HostVars() = %+v, want %+v", vars, want)
	}

	back, err := NodeFromHostVars(n.Hostname, n.Role, vars)
	if err != nil {
		t.Fatalf("NodeFromHostVars() error = %v", err)
	}
	if !back.Equal(n) {
		t.Errorf("NodeFromHostVars() = %+v, want %+v", back, n)
	}

	// Mutating the storage form leaves the node alone.
	vars.Labels["tier"] = "cpu"
	if n.Labels["tier"] != "gpu" {
		t.Errorf("HostVars() shares labels with the node")
	}
}

func TestNode_HostVarsOmitsEmpty(t *testing.T) {
	n, err := NewNode(validNode())
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}

	vars := n.HostVars()
	if vars.Labels != nil || vars.Taints != nil {
		t.Errorf("HostVars() = %+v, want nil labels and taints", vars)
	}
}

func TestRole_Group(t *testing.T) {
	tests := []struct {
		role Role
		want Group
	}{
		{role: RoleControlPlane, want: GroupControlPlane},
		{role: RoleWorker, want: GroupWorkers},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Group(); got != tt.want {
				t.Errorf("Role.Group() = %v, want %v", got, tt.want)
			}
			if got := tt.want.Role(); got != tt.role {
				t.Errorf("Group.Role() = %v, want %v", got, tt.role)
			}
		})
	}
}

func TestNode_Validate(t *testing.T) {
	n := validNode()
	n.TailscaleIP = "FD7A:115C:A1E0::1"

	if err := n.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	// Validation does not rewrite the node.
	if n.TailscaleIP != "FD7A:115C:A1E0::1" || n.Labels != nil {
		t.Errorf("Validate() modified the node: %+v", n)
	}

	n.Role = ""
	if err := n.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() error = %v, want ErrValidation", err)
	}
}
