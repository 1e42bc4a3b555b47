package output

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// dispatchShortcut sends the paste shortcut to the focused window via
// hyprctl. The trailing comma leaves the window argument empty, which
// targets the currently focused window.
func dispatchShortcut(ctx context.Context, shortcut string) error {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" {
		return fmt.Errorf("paste shortcut cannot be empty")
	}

	out, err := exec.CommandContext(ctx, "hyprctl", "--quiet", "dispatch", "sendshortcut", shortcut+",").CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("dispatch paste shortcut: %w", err)
		}
		return fmt.Errorf("dispatch paste shortcut: %w (%s)", err, trimmed)
	}
	return nil
}
