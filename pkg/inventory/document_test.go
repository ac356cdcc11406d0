package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name     string
		path     string
		wantErr  error
		wantHint string
	}{
		{name: "valid", path: write("valid.yml", testInventory)},
		{name: "missing", path: filepath.Join(dir, "missing.yml"), wantErr: ErrNotFound, wantHint: "--inventory"},
		{name: "empty", path: write("empty.yml", ""), wantErr: ErrEmpty, wantHint: "hosts.yml.example"},
		{name: "invalid", path: write("invalid.yml", "all: [\n"), wantErr: ErrParse, wantHint: "invalid YAML syntax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ReadDocument(tt.path)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, isMapping(doc.Body()))
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Contains(t, e.Hint, tt.wantHint)
			assert.Contains(t, err.Error(), tt.wantHint)
		})
	}
}

func TestDocument_WriteUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yml")
	require.NoError(t, os.WriteFile(path, []byte(testInventory), 0o644))

	doc, err := ReadDocument(path)
	require.NoError(t, err)
	require.NoError(t, doc.Write(WriteOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Rewriting an untouched document keeps its content and comments.
	for _, line := range []string{
		"# Homelab cluster inventory",
		"cluster_name: homelab # cluster name",
		"# primary server",
		"reserved_cpu: \"2\"",
		"tailscale_ip: 100.64.0.11 # added later",
	} {
		assert.Contains(t, string(data), line)
	}

	again, err := ReadDocument(path)
	require.NoError(t, err)
	assert.NoError(t, ValidateDocument(again))
}

func TestDocument_WriteConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yml")
	require.NoError(t, os.WriteFile(path, []byte(testInventory), 0o644))

	doc, err := ReadDocument(path)
	require.NoError(t, err)

	changed := strings.Replace(testInventory, "homelab #", "other #", 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))

	err = doc.Write(WriteOptions{ConflictCheck: true, Backup: true, BackupSuffix: ".backup"})
	assert.ErrorIs(t, err, ErrConflict)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, changed, string(data))
	assert.NoFileExists(t, path+".backup")

	// Without the check the concurrent change is overwritten.
	require.NoError(t, doc.Write(WriteOptions{}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cluster_name: homelab")
}

func TestDocument_WriteUnparsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yml")
	content := "all:\n  vars:\n    a: &x 1\n    b: *x\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc, err := ReadDocument(path)
	require.NoError(t, err)

	// Drop the anchor the alias refers to.
	vars, _ := mappingGet(doc.Body().Content[1], "vars")
	a, _ := mappingGet(vars, "a")
	a.Anchor = ""

	err = doc.Write(WriteOptions{Backup: true, BackupSuffix: ".backup"})
	assert.ErrorIs(t, err, ErrWriteFailed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.NoFileExists(t, path+".backup")
}

func TestRepairAliases(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		modify func(root *yaml.Node)
		want   string
	}{
		{
			name: "dropped-anchor",
			data: "a: &x {b: 1}\nc: *x\n",
			modify: func(root *yaml.Node) {
				body := root.Content[0]
				body.Content = body.Content[2:]
			},
			want: "c: {b: 1}\n",
		},
		{
			name: "replaced-anchor",
			data: "a: &x 1\nc: *x\n",
			modify: func(root *yaml.Node) {
				body := root.Content[0]
				body.Content[1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: "2", Anchor: "x"}
			},
			want: "a: &x 2\nc: *x\n",
		},
		{
			name: "anchor-moved-after-alias",
			data: "a: &x 1\nc: *x\nd: *x\n",
			modify: func(root *yaml.Node) {
				body := root.Content[0]
				body.Content = append(body.Content[2:], body.Content[0], body.Content[1])
			},
			want: "c: &x 1\nd: *x\na: &x 1\n",
		},
		{
			name: "self-reference",
			data: "a: &x {self: *x}\nc: *x\n",
			modify: func(root *yaml.Node) {
				body := root.Content[0]
				body.Content = body.Content[2:]
			},
			want: "c: &x {self: *x}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := &yaml.Node{}
			require.NoError(t, yaml.Unmarshal([]byte(tt.data), root))

			tt.modify(root)
			repairAliases(root)

			doc := &Document{Root: root}
			data, err := doc.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
			assert.NoError(t, yaml.Unmarshal(data, &yaml.Node{}))
		})
	}
}

func TestDocument_WriteNewFile(t *testing.T) {
	doc := parseYAML(t, testInventory)
	doc.Path = filepath.Join(t.TempDir(), "inventory", "hosts.yml")

	require.NoError(t, doc.Write(WriteOptions{ConflictCheck: true, Backup: true, BackupSuffix: ".backup"}))

	info, err := os.Stat(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, defaultFileMode, info.Mode().Perm())
	assert.NoFileExists(t, doc.Path+".backup")
}

func TestDocument_WritePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.yml")
	require.NoError(t, os.WriteFile(path, []byte(testInventory), 0o644))

	doc, err := ReadDocument(path)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err = doc.Write(WriteOptions{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestError(t *testing.T) {
	err := wrapError(os.ErrClosed, ErrWriteFailed, "Check disk space", "failed to write %s", "hosts.yml")

	assert.Equal(t, "failed to write hosts.yml: file already closed\n\nCheck disk space", err.Error())
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, ErrInventory)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NotErrorIs(t, err, ErrNotFound)

	plain := newError(ErrNotFound, "", "node '%s' not found", "worker-1")
	assert.Equal(t, "node 'worker-1' not found", plain.Error())
}
