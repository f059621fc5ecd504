package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/models"
)

const convID = "3f2b6c1e-8d7a-4b0e-9a51-0c6f2e7d9b44"

func TestReorderArgs(t *testing.T) {
	newFS := func() *flag.FlagSet {
		fs, _ := newFlagSet("search", true)
		fs.Int("top-k", 0, "")
		return fs
	}
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"machine learning", "-top-k", "5"},
			expected: []string{"-top-k", "5", "--", "machine learning"},
		},
		{
			name:     "flags interleaved with positionals",
			args:     []string{"-conversation", "c", "one", "-top-k", "3", "two"},
			expected: []string{"-conversation", "c", "-top-k", "3", "--", "one", "two"},
		},
		{
			name:     "bool flag takes no value",
			args:     []string{"query", "-debug", "more"},
			expected: []string{"-debug", "--", "query", "more"},
		},
		{
			name:     "flag with equals",
			args:     []string{"query", "-output=json"},
			expected: []string{"-output=json", "--", "query"},
		},
		{
			name:     "lone dash is positional",
			args:     []string{"-", "-conversation", "c"},
			expected: []string{"-conversation", "c", "--", "-"},
		},
		{
			name:     "double dash ends flags",
			args:     []string{"--", "-not-a-flag"},
			expected: []string{"--", "-not-a-flag"},
		},
		{
			name:     "empty args",
			args:     []string{},
			expected: []string{"--"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(newFS(), tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"mammals"}, "mammals"},
		{"multiple words", []string{"are", "cats", "mammals"}, "are cats mammals"},
		{"quoted phrase", []string{"are cats mammals"}, "are cats mammals"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseConversationID(t *testing.T) {
	got, err := parseConversationID(" 3F2B6C1E-8D7A-4B0E-9A51-0C6F2E7D9B44 ")
	require.NoError(t, err)
	assert.Equal(t, convID, got)

	for _, bad := range []string{"", "   ", "conversation-1", "../etc"} {
		_, err := parseConversationID(bad)
		assert.ErrorIs(t, err, errUsage, bad)
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "storage:\n  backend: disk\n  snapshot_dir: ./snapshots\n" +
		"embedding:\n  provider: hash\n  dimensions: 64\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func runCmd(t *testing.T, stdin string, command string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), command, args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestCommands_endToEnd(t *testing.T) {
	cfgPath := writeConfig(t)
	common := []string{"-config", cfgPath, "-conversation", convID}

	out, err := runCmd(t, "Cats are mammals. Rain is wet.", "add", append(common, "-doc", "notes", "-")...)
	require.NoError(t, err)
	assert.Equal(t, "Added 1 chunks to document notes\n", out)

	docPath := filepath.Join(filepath.Dir(cfgPath), "dogs.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("Dogs are loyal mammals."), 0o600))
	out, err = runCmd(t, "", "add", append(common, "-output", "json", docPath)...)
	require.NoError(t, err)
	var added models.AddDocumentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.True(t, strings.HasPrefix(added.DocID, "file:dogs.txt:"), added.DocID)
	assert.Equal(t, 1, added.Chunks)

	out, err = runCmd(t, "", "search", append([]string{"mammals"}, append(common, "-output", "json", "-top-k", "5")...)...)
	require.NoError(t, err)
	var search models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &search))
	assert.Len(t, search.Results, 2)

	out, err = runCmd(t, "", "search", append(common, "-output", "json", "-doc", "notes", "mammals")...)
	require.NoError(t, err)
	search = models.SearchResponse{}
	require.NoError(t, json.Unmarshal([]byte(out), &search))
	assert.Equal(t, []string{"Cats are mammals. Rain is wet."}, search.Results)

	out, err = runCmd(t, "", "ask", append(common, "are", "cats", "mammals")...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Cats are mammals.\n"), out)

	out, err = runCmd(t, "", "stats", append(common, "-output", "json")...)
	require.NoError(t, err)
	var stats convindex.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 64, stats.Dimension)
	assert.Len(t, stats.Documents, 2)

	out, err = runCmd(t, "", "list", "-config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, convID+"\n", out)

	out, err = runCmd(t, "", "remove", append(common, "notes")...)
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 chunks of document notes\n", out)

	_, err = runCmd(t, "", "clear", common...)
	require.NoError(t, err)
	out, err = runCmd(t, "", "stats", append(common, "-output", "json")...)
	require.NoError(t, err)
	stats = convindex.Stats{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.Chunks)
}

func TestCommands_usageErrors(t *testing.T) {
	cfgPath := writeConfig(t)
	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{"unknown command", "frobnicate", nil},
		{"missing conversation", "stats", []string{"-config", cfgPath}},
		{"bad conversation", "stats", []string{"-config", cfgPath, "-conversation", "nope"}},
		{"bad output", "stats", []string{"-config", cfgPath, "-conversation", convID, "-output", "yaml"}},
		{"add without file", "add", []string{"-config", cfgPath, "-conversation", convID}},
		{"empty search", "search", []string{"-config", cfgPath, "-conversation", convID}},
		{"empty question", "ask", []string{"-config", cfgPath, "-conversation", convID}},
		{"unknown flag", "stats", []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, "", tt.command, tt.args...)
			if !errors.Is(err, errUsage) {
				t.Errorf("err = %v, want usage error", err)
			}
		})
	}
}

func TestCommands_version(t *testing.T) {
	out, err := runCmd(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "docchat version dev\n", out)
}

func TestLoadConfig_invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: s3\n"), 0o600))
	_, _, err := loadConfig(path)
	assert.Error(t, err)
}
