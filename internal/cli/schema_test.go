package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCommand(t *testing.T) {
	output, err := executeCommand(rootCmd, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &schema))

	assert.Contains(t, schema, "$defs")
	assert.Contains(t, schema, "$schema")
}
