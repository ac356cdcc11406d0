package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/NeonSludge/cluster-mgr/pkg/inventory"
)

// Marshal returns the JSON or YAML encoding of v.
func Marshal(v interface{}, format string) ([]byte, error) {
	var bytes []byte
	var err error

	switch format {
	case "yaml":
		bytes, err = marshalYAML(v)
	case "json":
		bytes, err = json.MarshalIndent(v, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	if err != nil {
		return bytes, errors.Wrap(err, "marshalling error")
	}

	return bytes, nil
}

func marshalYAML(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)

	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ParseLabels parses comma-separated 'key=value' pairs.
func ParseLabels(raw string) (map[string]string, error) {
	labels := make(map[string]string)

	if len(strings.TrimSpace(raw)) == 0 {
		return labels, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)

		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid label format: '%s'. Expected 'key=value'", pair)
		}

		labels[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	return labels, nil
}

// ParseTaints parses comma-separated 'key=value:effect' taints.
func ParseTaints(raw string) ([]inventory.Taint, error) {
	taints := []inventory.Taint{}

	if len(strings.TrimSpace(raw)) == 0 {
		return taints, nil
	}

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)

		sep := strings.LastIndex(item, ":")
		if sep < 0 || !strings.Contains(item[:sep], "=") {
			return nil, fmt.Errorf("invalid taint format: '%s'. Expected 'key=value:effect'", item)
		}

		kv := strings.SplitN(item[:sep], "=", 2)
		effect := inventory.TaintEffect(strings.TrimSpace(item[sep+1:]))

		taint, err := inventory.NewTaint(strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1]), effect)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid taint '%s'", item)
		}

		taints = append(taints, taint)
	}

	return taints, nil
}

// ParseValue converts a command line value into a variable value of the requested type: string, int, bool or json.
func ParseValue(raw string, typ string) (*inventory.Value, error) {
	switch typ {
	case "", "string":
		return inventory.StringValue(raw), nil
	case "int":
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse value as int")
		}
		return inventory.IntValue(i), nil
	case "bool":
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes", "on":
			return inventory.BoolValue(true), nil
		case "false", "0", "no", "off":
			return inventory.BoolValue(false), nil
		default:
			return nil, fmt.Errorf("invalid boolean value: '%s'", raw)
		}
	case "json":
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("failed to parse value as json: '%s'", raw)
		}
		v, err := inventory.ValueFromYAML([]byte(raw))
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse value as json")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("invalid type '%s'. Must be one of: string, int, bool, json", typ)
	}
}

// SplitKey splits a dotted variable key into its segments.
func SplitKey(key string) ([]string, error) {
	path := strings.Split(key, ".")

	for _, segment := range path {
		if len(segment) == 0 {
			return nil, fmt.Errorf("invalid key '%s': empty segment", key)
		}
	}

	return path, nil
}

// FormatLabels renders labels as sorted 'key=value' pairs.
func FormatLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return strings.Join(pairs, ",")
}

// FormatTaints renders taints as 'key=value:effect' items.
func FormatTaints(taints []inventory.Taint) string {
	items := make([]string, len(taints))
	for i, t := range taints {
		items[i] = fmt.Sprintf("%s=%s:%s", t.Key, t.Value, t.Effect)
	}

	return strings.Join(items, ",")
}
