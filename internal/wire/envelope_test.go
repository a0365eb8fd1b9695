package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memengine/internal/domain"
)

func TestNewArtifactPayload_NullPathWhenUnset(t *testing.T) {
	p := NewArtifactPayload(domain.Artifact{ID: "a1", Kind: domain.ArtifactSnippet, Content: "x"})
	assert.Nil(t, p.Path)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"path":null`)
}

func TestNewArtifactPayload_PathPresent(t *testing.T) {
	p := NewArtifactPayload(domain.Artifact{ID: "a1", Path: "rate_limiter.rs", Kind: domain.ArtifactFile})
	require.NotNil(t, p.Path)
	assert.Equal(t, "rate_limiter.rs", *p.Path)
}

func TestEnvelope_MarshalsContractualFields(t *testing.T) {
	env := Envelope{
		Type:        "operation.artifact_completed",
		OperationID: "op-1",
		Timestamp:   1700000000,
		Artifact:    &ArtifactPayload{ID: "a1", Kind: domain.ArtifactFile},
	}

	var asMap map[string]interface{}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &asMap))

	assert.Equal(t, "operation.artifact_completed", asMap["type"])
	assert.Equal(t, "op-1", asMap["operation_id"])
	assert.Equal(t, float64(1700000000), asMap["timestamp"])
	assert.Contains(t, asMap, "artifact")
	assert.NotContains(t, asMap, "artifacts")
	assert.NotContains(t, asMap, "tool_name")
}
