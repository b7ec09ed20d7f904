package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"bot", "backup", "restore", "migrate", "status"} {
		assert.True(t, names[want], want)
	}

	require.NotNil(t, backupCmd.Flags().Lookup("force"))
	assert.Error(t, migrateCmd.Args(migrateCmd, nil))
	assert.NoError(t, migrateCmd.Args(migrateCmd, []string{"cloud"}))
}
