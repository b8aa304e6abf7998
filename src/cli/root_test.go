package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "sync"}, names)
}

func TestSyncCmd_RequiresItem(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"sync"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--item")
}

func TestRootCmd_RejectsBadLogLevel(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"--log-level", "loud", "sync", "--item", "x"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := NewRootCmd()
	root.SetArgs([]string{"migrate"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
