package automation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// Per-variable and aggregate thresholds past which a bash variable is
// written to a file instead of exported, avoiding E2BIG on exec of child
// processes.
const (
	perVarThreshold   = 4 * 1024
	aggregateThreshold = 16 * 1024
)

// writeScript synthesizes automationID's runnable script under dir and
// returns its path, any KEY=VALUE entries to add to the child process's
// environment, and a cleanup func that removes every file it created
// (script + any file-backed variables).
func writeScript(dir string, a *models.Automation, vars map[string]any) (scriptPath string, extraEnv []string, cleanup func(), err error) {
	if err := ensureDir(dir); err != nil {
		return "", nil, func() {}, fmt.Errorf("prepare temp dir: %w", err)
	}

	var body string
	var created []string

	switch a.ScriptLanguage {
	case models.ScriptLanguageBash:
		body, extraEnv, created, err = buildBashScript(dir, a, vars)
	case models.ScriptLanguageJavaScript:
		body, err = buildLiteralScript(a, vars, "const %s = %s;\n")
	case models.ScriptLanguagePython:
		body, err = buildLiteralScript(a, vars, "%s = %s\n")
	default:
		err = fmt.Errorf("unsupported script language %q", a.ScriptLanguage)
	}
	if err != nil {
		return "", nil, func() {}, err
	}

	f, err := os.CreateTemp(dir, fmt.Sprintf("automation-%s-*.sh", a.ID))
	if err != nil {
		return "", nil, func() {}, fmt.Errorf("create script file: %w", err)
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return "", nil, func() {}, fmt.Errorf("write script file: %w", err)
	}
	f.Close()
	if err := os.Chmod(f.Name(), 0o700); err != nil {
		return "", nil, func() {}, fmt.Errorf("chmod script file: %w", err)
	}
	created = append(created, f.Name())

	cleanup = func() {
		for _, p := range created {
			_ = os.Remove(p)
		}
	}
	return f.Name(), extraEnv, cleanup, nil
}

// buildBashScript decides, per variable, whether it is exported directly or
// written to <dir>/vars/<automationId>-<VAR> and loaded into a
// non-exported shell variable at script startup.
func buildBashScript(dir string, a *models.Automation, vars map[string]any) (body string, extraEnv []string, created []string, err error) {
	names := sortedKeys(vars)

	varsDir := filepath.Join(dir, "vars")
	if err := ensureDir(varsDir); err != nil {
		return "", nil, nil, fmt.Errorf("prepare vars dir: %w", err)
	}

	var aggregate int
	var fileLoads string
	for _, name := range names {
		value := stringify(vars[name])
		oversize := len(value) > perVarThreshold
		if !oversize {
			aggregate += len(value)
			if aggregate > aggregateThreshold {
				oversize = true
			}
		}
		if oversize {
			path := filepath.Join(varsDir, fmt.Sprintf("%s-%s", a.ID, name))
			if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
				return "", nil, created, fmt.Errorf("write var file %s: %w", name, err)
			}
			created = append(created, path)
			fileLoads += fmt.Sprintf("%s=$(cat %q)\n", name, path)
			continue
		}
		extraEnv = append(extraEnv, name+"="+value)
	}

	body = "#!/usr/bin/env bash\n" + fileLoads + a.ScriptContent
	return body, extraEnv, created, nil
}

// buildLiteralScript prepends one declaration per variable (its value as a
// JSON literal) to a JavaScript or Python script, so the script receives its
// variables at the top of the generated source.
func buildLiteralScript(a *models.Automation, vars map[string]any, declareFmt string) (string, error) {
	var prelude string
	for _, name := range sortedKeys(vars) {
		encoded, err := json.Marshal(vars[name])
		if err != nil {
			return "", fmt.Errorf("encode var %s: %w", name, err)
		}
		prelude += fmt.Sprintf(declareFmt, name, encoded)
	}
	return prelude + a.ScriptContent, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
