package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"migrate", "refdata", "run", "process", "status", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "eis-ingest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		flag string
		def  string
	}{
		{runCmd, "start", ""},
		{runCmd, "until", ""},
		{processCmd, "region", ""},
		{processCmd, "family", ""},
		{serveCmd, "port", "0"},
		{serveCmd, "crawl", "false"},
		{refdataLoadCmd, "regions", ""},
		{refdataLoadCmd, "codes", ""},
	}
	for _, tt := range tests {
		f := tt.cmd.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "%s --%s", tt.cmd.Name(), tt.flag)
		assert.Equal(t, tt.def, f.DefValue)
	}
}

func TestRefdataHasLoad(t *testing.T) {
	require.Len(t, refdataCmd.Commands(), 1)
	assert.Equal(t, "load", refdataCmd.Commands()[0].Name())
}
