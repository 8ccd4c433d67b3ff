package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
)

func execute(t *testing.T) string {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionText(t *testing.T) {
	shared.SetVersion("1.2.3", "abc1234", "2026-08-27")
	t.Cleanup(func() { shared.SetVersion("dev", "unknown", "unknown") })

	out := execute(t)
	assert.Contains(t, out, "ensemble version 1.2.3")
	assert.Contains(t, out, "abc1234")
	assert.Contains(t, out, "2026-08-27")
}

func TestVersionJSON(t *testing.T) {
	shared.SetVersion("1.2.3", "abc1234", "2026-08-27")
	t.Cleanup(func() { shared.SetVersion("dev", "unknown", "unknown") })
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out := execute(t)

	var resp struct {
		Command string `json:"command"`
		Success bool   `json:"success"`
		Build   struct {
			Version string `json:"version"`
			Commit  string `json:"commit"`
		} `json:"build"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "version", resp.Command)
	assert.True(t, resp.Success)
	assert.Equal(t, "1.2.3", resp.Build.Version)
	assert.Equal(t, "abc1234", resp.Build.Commit)
}
