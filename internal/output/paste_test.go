package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchShortcutSendsToFocusedWindow(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t, false)

	err := dispatchShortcut(context.Background(), "SUPER,V")
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "--quiet dispatch sendshortcut SUPER,V,")
}

func TestDispatchShortcutRejectsEmptyShortcut(t *testing.T) {
	err := dispatchShortcut(context.Background(), "   ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "shortcut")
}

func TestDispatchShortcutSurfacesHyprctlFailure(t *testing.T) {
	installHyprctlStub(t, true)

	err := dispatchShortcut(context.Background(), "CTRL,V")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dispatch paste shortcut")
	require.Contains(t, err.Error(), "sendshortcut failed")
}

func installHyprctlStub(t *testing.T, fail bool) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "hyprctl")
	script := `#!/usr/bin/env bash
set -euo pipefail
if [[ "${HYPR_STUB_FAIL:-}" == "1" ]]; then
  echo "sendshortcut failed" >&2
  exit 1
fi
printf '%s\n' "$*" >> "${HYPR_ARGS_FILE:-/dev/null}"
`
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(script)+"\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
	if fail {
		t.Setenv("HYPR_STUB_FAIL", "1")
	} else {
		t.Setenv("HYPR_STUB_FAIL", "0")
	}
}
