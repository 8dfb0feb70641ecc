package synapse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	resp, err := parseOutput([]byte(`{"text":"positive","input_tokens":12,"output_tokens":1}`))
	require.NoError(t, err)
	assert.Equal(t, Response{Text: "positive", InputTokens: 12, OutputTokens: 1}, resp)

	resp, err = parseOutput([]byte("  plain completion\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain completion", resp.Text)

	resp, err = parseOutput([]byte("{not json"))
	require.NoError(t, err)
	assert.Equal(t, "{not json", resp.Text)

	_, err = parseOutput([]byte(`{"error":"model weights missing"}`))
	assert.ErrorContains(t, err, "model weights missing")

	resp, err = parseOutput(nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestPluginMetaDescriptor(t *testing.T) {
	d := PluginMeta{ModelID: "x"}.Descriptor("synapse")
	assert.Equal(t, "x", d.Name)
	assert.Equal(t, "synapse", d.Provider)
}
