package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is a throwaway project directory with a config file whose state
// paths all point inside it.
type testEnv struct {
	dir        string
	configPath string
}

func (e testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

// newTestEnv writes a config to a temp dir. extra is appended verbatim and
// may add top-level sections the base config does not set.
func newTestEnv(t *testing.T, extra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{dir: dir, configPath: filepath.Join(dir, "config.yaml")}

	content := fmt.Sprintf(`job:
  id: triage-audit
  stages: [in_review]
  cooldown: 6h
  verify_pr: false
cooldown:
  backend: json
  path: %s
ledger:
  path: %s
artifacts:
  type: fs
  dir: %s
log:
  level: error
%s`, env.path("cooldown.json"), env.path("ampa.db"), env.path("artifacts"), extra)

	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
