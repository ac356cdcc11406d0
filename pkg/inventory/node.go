package inventory

import (
	"fmt"
	"net/netip"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

const (
	hostnameRegexString = "^[A-Za-z0-9]([-A-Za-z0-9]*[A-Za-z0-9])?(\\.[A-Za-z0-9]([-A-Za-z0-9]*[A-Za-z0-9])?)*$"
)

var (
	hostnameRegex = regexp.MustCompile(hostnameRegexString)

	defaultValidator = NewValidator()
)

// isHostname validates if the field's value is a dot-separated sequence of RFC 1123 labels.
func isHostname(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if !hostnameRegex.MatchString(name) {
		return false
	}

	// Label length limits.
	_, ok := dns.IsDomainName(name)

	return ok
}

// NewValidator creates a struct validator for nodes.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterValidation("hostname_rfc1123", isHostname)

	// Report YAML field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// fieldRule describes a failed validation rule.
func fieldRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "cannot be empty"
	case "max":
		return fmt.Sprintf("cannot exceed %s characters", fe.Param())
	case "hostname_rfc1123":
		return "must contain only alphanumeric characters, hyphens, and dots, and cannot start or end with a hyphen"
	case "ip":
		return "must be a valid IPv4 or IPv6 address"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed the '%s' check", fe.Tag())
	}
}

// fieldErrors converts validator errors into an inventory validation error naming every offending field.
func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return wrapError(err, ErrValidation, "", "node validation failed")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s '%v' %s", field, fe.Value(), fieldRule(fe)))
	}

	return newError(ErrValidation, "", "invalid node: %s", strings.Join(msgs, "; "))
}

// validateNode validates a node and brings it into canonical form.
func validateNode(v *validator.Validate, n *Node) error {
	if err := v.Struct(n); err != nil {
		return fieldErrors(err)
	}

	addr, err := netip.ParseAddr(n.TailscaleIP)
	if err != nil {
		return wrapError(err, ErrValidation, "", "invalid node: tailscale_ip '%s'", n.TailscaleIP)
	}
	n.TailscaleIP = addr.String()

	if n.Labels == nil {
		n.Labels = map[string]string{}
	}
	if n.Taints == nil {
		n.Taints = []Taint{}
	}

	return nil
}

// NewNode validates a node and returns its canonical copy.
func NewNode(n Node) (*Node, error) {
	node := n.clone()

	if err := validateNode(defaultValidator, node); err != nil {
		return nil, err
	}

	return node, nil
}

// NewTaint creates a validated node taint.
func NewTaint(key, value string, effect TaintEffect) (Taint, error) {
	t := Taint{Key: key, Value: value, Effect: effect}

	if err := defaultValidator.Struct(t); err != nil {
		return Taint{}, fieldErrors(err)
	}

	return t, nil
}

// Validate checks the node against the node schema.
func (n *Node) Validate() error {
	return validateNode(defaultValidator, n.clone())
}

// HostVars returns the storage form of the node. Optional fields are left at their zero values
// when unset so they are omitted from the inventory.
func (n *Node) HostVars() HostVars {
	vars := HostVars{
		AnsibleHost:    n.AnsibleHost,
		TailscaleIP:    n.TailscaleIP,
		ReservedCPU:    n.ReservedCPU,
		ReservedMemory: n.ReservedMemory,
		GPU:            n.GPU,
	}

	if len(n.Labels) > 0 {
		vars.Labels = make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			vars.Labels[k] = v
		}
	}

	if len(n.Taints) > 0 {
		vars.Taints = append([]Taint(nil), n.Taints...)
	}

	return vars
}

// NodeFromHostVars builds a node from its storage form.
func NodeFromHostVars(hostname string, role Role, vars HostVars) (*Node, error) {
	return NewNode(Node{
		Hostname:       hostname,
		AnsibleHost:    vars.AnsibleHost,
		TailscaleIP:    vars.TailscaleIP,
		Role:           role,
		ReservedCPU:    vars.ReservedCPU,
		ReservedMemory: vars.ReservedMemory,
		GPU:            vars.GPU,
		Labels:         vars.Labels,
		Taints:         vars.Taints,
	})
}

// Equal reports whether two nodes describe the same host.
func (n *Node) Equal(o *Node) bool {
	return reflect.DeepEqual(n, o)
}

func (n *Node) clone() *Node {
	c := *n

	if n.Labels != nil {
		c.Labels = make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			c.Labels[k] = v
		}
	}

	if n.Taints != nil {
		c.Taints = append([]Taint{}, n.Taints...)
	}

	return &c
}
