package git_test

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/smartcard-connector/format-code/git"
	"github.com/stretchr/testify/require"
)

func TestIsInsideWorktree(t *testing.T) {
	as := require.New(t)

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not available")
	}

	tempDir := t.TempDir()

	inside, err := git.IsInsideWorktree(tempDir)
	as.NoError(err)
	as.False(inside)

	gitInit := exec.Command("git", "init", "--quiet")
	gitInit.Dir = tempDir
	as.NoError(gitInit.Run())

	inside, err = git.IsInsideWorktree(tempDir)
	as.NoError(err)
	as.True(inside)

	root, err := git.TreeRoot(tempDir)
	as.NoError(err)

	expected, err := filepath.EvalSymlinks(tempDir)
	as.NoError(err)

	actual, err := filepath.EvalSymlinks(root)
	as.NoError(err)
	as.Equal(expected, actual)
}
