package git

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

func IsInsideWorktree(path string) (bool, error) {
	// check if the path is inside a git repository
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = path

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(string(exitErr.Stderr), "not a git repository") {
			return false, nil
		}

		return false, fmt.Errorf("failed to check if %s is a git repository: %w", path, err)
	}

	if strings.TrimSpace(string(out)) != "true" {
		// not a git repo
		return false, nil
	}

	// is a git repo
	return true, nil
}

// TreeRoot returns the top-level directory of the worktree containing path.
func TreeRoot(path string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = path

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to find the git tree root for %s: %w", path, err)
	}

	return strings.TrimSpace(string(out)), nil
}
