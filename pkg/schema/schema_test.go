package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSchema(t *testing.T) {
	s, err := GetSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(s.Schema, &doc))
	assert.Contains(t, doc, "$defs")

	assert.Equal(t, "schema", s.Stages[0])
	assert.Contains(t, s.Stages, "modeling")
	assert.Equal(t, []string{"text", "markdown", "json", "yaml"}, s.Formats)
	assert.Equal(t, []string{"median", "knn"}, s.Strategies)
	assert.Equal(t, []string{"anthropic", "openai"}, s.Narrators)
}
