package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"sweep", "sync", "stats", "track"}, names)
}

func TestRootCmd_ArgValidation(t *testing.T) {
	tests := [][]string{
		{"sync"},
		{"sync", "a", "b"},
		{"sweep", "extra"},
		{"stats", "extra"},
		{"track"},
	}
	for _, args := range tests {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)
		require.Error(t, root.Execute(), "%v", args)
	}
}
