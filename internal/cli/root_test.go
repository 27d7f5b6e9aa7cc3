package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fetchwork/internal/schema"
	"github.com/roach88/fetchwork/internal/store"
)

const testCatalogSrc = `
item: {
	alpha: {children: ["beta"]}
	beta: {required: ["name"], unique: ["name"]}
	gamma: {commit: false}
	commit: {commit: false}
}
`

// executeCommand runs the CLI with captured output.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeTestCatalog writes the shared test catalog to a file.
func writeTestCatalog(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.cue")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogSrc), 0o644))
	return path
}

// seedDatabase creates a committed database with n rows per type.
func seedDatabase(t *testing.T, dbPath string, counts map[string]int) {
	t.Helper()
	cat, err := schema.Compile(testCatalogSrc)
	require.NoError(t, err)
	st, err := store.Open(dbPath, cat)
	require.NoError(t, err)
	defer st.Close()

	for itemType, n := range counts {
		items := make([]store.Item, n)
		for i := range items {
			items[i] = store.Item{Fields: map[string]any{"name": fmt.Sprintf("%s-%03d", itemType, i)}}
		}
		_, itemErrs, err := st.AddOrUpdate(items, itemType, false)
		require.NoError(t, err)
		require.Empty(t, itemErrs)
	}
	_, err = st.CommitSession("seed")
	require.NoError(t, err)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fetchwork", cmd.Use)
	assert.Contains(t, cmd.Long, "worker")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"fetch", "query", "schema"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := executeCommand(t, "--format", "invalid", "schema", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitFailure, "inner"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
