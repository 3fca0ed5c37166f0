package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootListsSubcommands(t *testing.T) {
	out, _, err := runCLI(t, nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"start", "stop", "drop", "info", "list", "logs", "psql", "extensions"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootUnknownCommand(t *testing.T) {
	_, _, err := runCLI(t, nil, "restart")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
