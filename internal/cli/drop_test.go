package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgden/pgden/internal/config"
)

func TestDropForceRemovesEverything(t *testing.T) {
	_, home := setupCLI(t)

	_, _, err := runCLI(t, nil, "start")
	require.NoError(t, err)

	out, _, err := runCLI(t, nil, "drop", "--force")
	require.NoError(t, err)
	assert.Equal(t, "Instance 'default' dropped.\n", out)

	_, statErr := os.Stat(config.InstanceDir(home, "default"))
	assert.True(t, os.IsNotExist(statErr))

	out, _, err = runCLI(t, nil, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "does not exist")
}

func TestDropMissingInstance(t *testing.T) {
	setupCLI(t)

	out, _, err := runCLI(t, nil, "drop", "--force", "--name", "ghost")
	require.NoError(t, err)
	assert.Equal(t, "Instance 'ghost' does not exist.\n", out)
}

func TestDropPromptAccepted(t *testing.T) {
	_, home := setupCLI(t)

	_, _, err := runCLI(t, nil, "start")
	require.NoError(t, err)

	out, _, err := runCLI(t, strings.NewReader("y\n"), "drop")
	require.NoError(t, err)

	assert.Contains(t, out, "This will permanently delete instance 'default' and all its data:")
	assert.Contains(t, out, "Are you sure? [y/N] ")
	assert.Contains(t, out, "Instance 'default' dropped.")

	_, statErr := os.Stat(config.DataDir(home, "default"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDropPromptDeclined(t *testing.T) {
	_, home := setupCLI(t)

	_, _, err := runCLI(t, nil, "start")
	require.NoError(t, err)

	out, _, err := runCLI(t, strings.NewReader("n\n"), "drop")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	_, statErr := os.Stat(config.DataDir(home, "default"))
	assert.NoError(t, statErr)
}

func TestDropPromptDefaultsToNo(t *testing.T) {
	setupCLI(t)

	_, _, err := runCLI(t, nil, "start")
	require.NoError(t, err)

	out, _, err := runCLI(t, strings.NewReader("\n"), "drop")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")
}
