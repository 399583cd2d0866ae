package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	originalRootCmd := rootCmd

	rootCmd = &cobra.Command{
		Use:   "cortex",
		Short: "Test command",
		Run:   func(cmd *cobra.Command, args []string) {},
	}
	rootCmd.SetArgs([]string{})
	defer func() { rootCmd = originalRootCmd }()

	assert.NoError(t, Execute())
}

func TestGetVersion(t *testing.T) {
	version := getVersion()
	assert.Contains(t, version, "dev")
	assert.Contains(t, version, "unknown")
	assert.Contains(t, version, GoVersion)
}

func TestInitLogging(t *testing.T) {
	require.NotPanics(t, initLogging)
}

func TestInitConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NotPanics(t, initConfig)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"diagnose", "heal", "profile", "serve", "schema", "version", "update"} {
		assert.True(t, names[name], name)
	}
}

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	// a copy keeps the global command's state clean between tests
	cmd := &cobra.Command{
		Use:   root.Use,
		Short: root.Short,
		Long:  root.Long,
		Run:   root.Run,
	}

	for _, subCmd := range root.Commands() {
		cmd.AddCommand(subCmd)
	}

	cmd.Flags().AddFlagSet(root.Flags())
	cmd.PersistentFlags().AddFlagSet(root.PersistentFlags())

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return buf.String(), err
}
