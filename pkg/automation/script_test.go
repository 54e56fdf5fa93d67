package automation

import (
	"os"
	"strings"
	"testing"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBashScriptExportsSmallVars(t *testing.T) {
	a := &models.Automation{ID: "a1", ScriptContent: "echo hi\n"}
	dir := t.TempDir()

	body, env, created, err := buildBashScript(dir, a, map[string]any{"BRANCH": "main"})
	require.NoError(t, err)

	assert.Contains(t, env, "BRANCH=main")
	assert.Contains(t, body, "echo hi")
	assert.Empty(t, created)
}

func TestBuildBashScriptFileBacksOversizedVar(t *testing.T) {
	a := &models.Automation{ID: "a1", ScriptContent: "echo hi\n"}
	dir := t.TempDir()
	big := strings.Repeat("x", perVarThreshold+1)

	body, env, created, err := buildBashScript(dir, a, map[string]any{"DIFF": big})
	require.NoError(t, err)

	assert.Empty(t, env)
	require.Len(t, created, 1)
	assert.Contains(t, body, "DIFF=$(cat ")

	contents, err := os.ReadFile(created[0])
	require.NoError(t, err)
	assert.Equal(t, big, string(contents))
}

func TestBuildBashScriptFileBacksOnAggregateOverflow(t *testing.T) {
	a := &models.Automation{ID: "a1", ScriptContent: "echo hi\n"}
	dir := t.TempDir()

	vars := map[string]any{
		"A": strings.Repeat("a", 3000),
		"B": strings.Repeat("b", 3000),
		"C": strings.Repeat("c", 3000),
		"D": strings.Repeat("d", 3000),
		"E": strings.Repeat("e", 3000),
		"F": strings.Repeat("f", 3000),
	}
	_, env, created, err := buildBashScript(dir, a, vars)
	require.NoError(t, err)

	assert.NotEmpty(t, created, "some vars should overflow to file-backed once the 16KiB aggregate is exceeded")
	assert.Less(t, len(env), len(vars))
}

func TestBuildLiteralScriptEncodesJSON(t *testing.T) {
	a := &models.Automation{ScriptContent: "console.log(BRANCH)\n"}

	body, err := buildLiteralScript(a, map[string]any{"BRANCH": "main", "COUNT": 3}, "const %s = %s;\n")
	require.NoError(t, err)

	assert.Contains(t, body, `const BRANCH = "main";`)
	assert.Contains(t, body, `const COUNT = 3;`)
	assert.Contains(t, body, "console.log(BRANCH)")
}
