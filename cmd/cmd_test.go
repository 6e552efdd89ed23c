package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/kambo-hive/internal/discovery"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hive version "+Version)
}

func TestHostRejectsMissingGraphsDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := execute(t, "host", "-q", "--graphs", missing, "--no-discovery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host.graphs_dir")
}

func TestHostRejectsUnknownStrategy(t *testing.T) {
	_, err := execute(t, "host", "-q", "--graphs", t.TempDir(), "--strategy", "priority", "--no-discovery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host.strategy")
}

func TestWorkerRejectsUnknownStrategy(t *testing.T) {
	_, err := execute(t, "worker", "-q", "--host", "127.0.0.1:1", "--strategy", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heuristic")
}

func TestDiscoverCommand(t *testing.T) {
	responder := discovery.NewResponder("127.0.0.1:0", "10.1.2.3:12345")
	require.NoError(t, responder.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go responder.Run(ctx)

	out, err := execute(t, "discover", "--target", responder.Addr().String(), "--timeout", "2s")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:12345", strings.TrimSpace(out))
}

func TestChangedFlags(t *testing.T) {
	require.NoError(t, hostCmd.Flags().Set("strategy", "lifo"))
	overrides := changedFlags(hostCmd, hostFlagPaths)
	assert.Equal(t, "lifo", overrides["host.strategy"])
	_, ok := overrides["host.bind_address"]
	assert.False(t, ok)
}
