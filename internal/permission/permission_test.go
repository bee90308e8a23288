// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDenialsClassifiesSandboxVsTool(t *testing.T) {
	stdout := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","is_error":true,"content":"Error: tool disabled"}]}}
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t2","is_error":true,"content":"Error: access was blocked. For security, Claude Code may only write within the project"}]}}
{"type":"result","permission_denials":[{"tool_name":"Bash","tool_use_id":"t1","tool_input":{"command":"npm test"}},{"tool_name":"Write","tool_use_id":"t2","tool_input":{"file_path":"/etc/passwd"}}]}
`
	denials := ParseDenials(stdout)
	require.Len(t, denials, 2)
	assert.Equal(t, "Bash", denials[0].ToolName)
	assert.False(t, denials[0].IsSandboxDenial)
	assert.Equal(t, "Error: tool disabled", denials[0].ErrorMessage)

	assert.Equal(t, "Write", denials[1].ToolName)
	assert.True(t, denials[1].IsSandboxDenial)
}

func TestGrantOptionsBashThreeTiers(t *testing.T) {
	opts := GrantOptions("Bash", map[string]interface{}{"command": "git commit -m foo"})
	require.Len(t, opts, 3)
	assert.Equal(t, "Bash(git commit -m foo)", opts[0].Value)
	assert.Equal(t, "Bash(git commit:*)", opts[1].Value)
	assert.Equal(t, "Bash(git:*)", opts[2].Value)
}

func TestGrantOptionsBashNoArgsSkipsMiddleTier(t *testing.T) {
	opts := GrantOptions("Bash", map[string]interface{}{"command": "ls"})
	require.Len(t, opts, 2)
	assert.Equal(t, "Bash(ls)", opts[0].Value)
	assert.Equal(t, "Bash(ls:*)", opts[1].Value)
}

func TestGrantOptionsFileTool(t *testing.T) {
	opts := GrantOptions("Read", map[string]interface{}{"file_path": "/tmp/a.txt"})
	require.Len(t, opts, 2)
	assert.Equal(t, "Read(/tmp/a.txt)", opts[0].Value)
	assert.Equal(t, "Read", opts[1].Value)
}

func TestUpdatePermissionsFileMergesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, ".claude", "settings.json")

	require.NoError(t, UpdatePermissionsFile(settingsPath, []string{"Bash(npm test:*)"}))
	require.NoError(t, UpdatePermissionsFile(settingsPath, []string{"Bash(npm test:*)", "Read"}))

	data, err := os.ReadFile(settingsPath)
	require.NoError(t, err)
	var settings map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &settings))

	perms := settings["permissions"].(map[string]interface{})
	allow := perms["allow"].([]interface{})
	assert.Len(t, allow, 2)
}

func TestIsSandboxDenial(t *testing.T) {
	assert.True(t, IsSandboxDenial("was blocked. For security, Claude Code may only write in the sandbox"))
	assert.False(t, IsSandboxDenial("Error: tool disabled by settings"))
}
