package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// BaseNone selects every tracked file rather than those changed against a ref.
const BaseNone = "none"

// GitProvider discovers files by reading the git repository directly.
type GitProvider struct {
	treeRoot string
	repoRoot string

	log  *log.Logger
	repo *git.Repository
}

func (g *GitProvider) Discover(ctx context.Context, base string, masks []string) ([]string, error) {
	globs, err := compileGlobs(masks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	var candidates []string

	if base == BaseNone {
		candidates, err = g.tracked()
	} else {
		candidates, err = g.changed(ctx, base)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	paths := make([]string, 0, len(candidates))

	for _, name := range candidates {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		if !pathMatches(name, globs) {
			continue
		}

		path := filepath.Join(g.repoRoot, filepath.FromSlash(name))

		info, err := os.Lstat(path)
		if os.IsNotExist(err) {
			// the file might have been removed without the change being staged yet
			g.log.Debugf("path %s appears to have been removed from the filesystem", name)

			continue
		} else if err != nil {
			return nil, fmt.Errorf("%w: failed to stat %s: %w", ErrDiscoveryFailed, path, err)
		} else if !info.Mode().IsRegular() {
			continue
		}

		relPath, err := filepath.Rel(g.treeRoot, path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to determine a relative path for %s: %w", ErrDiscoveryFailed, path, err)
		} else if strings.HasPrefix(relPath, "..") {
			g.log.Debugf("path %s is outside of the tree root, skipping", name)

			continue
		}

		paths = append(paths, relPath)
	}

	sort.Strings(paths)

	g.log.Debugf("discovered %d file(s)", len(paths))

	return paths, nil
}

// tracked lists the regular files in the git index.
func (g *GitProvider) tracked() ([]string, error) {
	gitIndex, err := g.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to open git index: %w", err)
	}

	names := make([]string, 0, len(gitIndex.Entries))

	for _, entry := range gitIndex.Entries {
		// we only want regular files, not directories, symlinks or submodules
		if entry.Mode == filemode.Dir || entry.Mode == filemode.Symlink || entry.Mode == filemode.Submodule {
			continue
		}

		names = append(names, entry.Name)
	}

	return names, nil
}

// changed lists files added or modified between base and HEAD, plus any staged or unstaged modifications in the
// worktree. Untracked files are ignored.
func (g *GitProvider) changed(ctx context.Context, base string) ([]string, error) {
	baseTree, err := g.tree(plumbing.Revision(base))
	if err != nil {
		return nil, err
	}

	headTree, err := g.tree(plumbing.Revision(plumbing.HEAD))
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, baseTree, headTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s against HEAD: %w", base, err)
	}

	set := make(map[string]struct{}, len(changes))

	for _, change := range changes {
		// deletions have no destination
		if change.To.Name == "" {
			continue
		}

		set[change.To.Name] = struct{}{}
	}

	worktree, err := g.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}

	for name, fileStatus := range status {
		if fileStatus.Worktree == git.Untracked {
			continue
		}

		if fileStatus.Worktree == git.Unmodified && fileStatus.Staging == git.Unmodified {
			continue
		}

		set[name] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}

	return names, nil
}

func (g *GitProvider) tree(rev plumbing.Revision) (*object.Tree, error) {
	hash, err := g.repo.ResolveRevision(rev)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve '%s': %w", rev, err)
	}

	commit, err := g.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit for '%s': %w", rev, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree for '%s': %w", rev, err)
	}

	return tree, nil
}

// NewGit opens the git repository containing treeRoot.
func NewGit(treeRoot string) (*GitProvider, error) {
	repo, err := git.PlainOpenWithOptions(treeRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open git repository: %w", ErrDiscoveryFailed, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open worktree: %w", ErrDiscoveryFailed, err)
	}

	return &GitProvider{
		treeRoot: treeRoot,
		repoRoot: worktree.Filesystem.Root(),
		log:      log.WithPrefix("discover[git]"),
		repo:     repo,
	}, nil
}
