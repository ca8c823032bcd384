package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterSuccessJSON(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out}
	require.NoError(t, f.Success(map[string]any{"staged": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, float64(3), resp.Data.(map[string]any)["staged"])
}

func TestFormatterSuccessText(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out}
	require.NoError(t, f.Success("done"))
	assert.Equal(t, "done\n", out.String())
}

func TestFormatterVerboseLogRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
	f.VerboseLog("working on %s", "thing")

	assert.Empty(t, out.String(), "verbose chatter must not corrupt the JSON stream")
	assert.Equal(t, "working on thing\n", errOut.String())
}

func TestFormatterVerboseLogSilentByDefault(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out}
	f.VerboseLog("hidden")
	assert.Empty(t, out.String())
}
