// Package git checks out project sources for release builds.
package git

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	appcfg "git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
)

// Client handles git operations against the project repository. It carries
// no per-operation state, so one client may serve concurrent checkouts as
// long as each targets its own directory.
type Client struct {
	buildCfg *appcfg.BuildConfig // optional build config for depth/retry flags
}

// NewClient creates a git client.
func NewClient() *Client { return &Client{} }

// WithBuildConfig attaches build configuration to the client (fluent helper).
func (c *Client) WithBuildConfig(cfg *appcfg.BuildConfig) *Client { c.buildCfg = cfg; return c }

// CheckoutResult describes a completed checkout.
type CheckoutResult struct {
	// Path is the local checkout directory.
	Path string
	// Commit is the resolved HEAD commit hash.
	Commit string
	// Ref is the ref that was checked out (branch or tag name).
	Ref string
}

// Checkout makes dir/<project name> hold the project at the given ref. An
// existing clone of the same origin is updated with a fetch and reset;
// anything else is removed and cloned fresh. An empty ref falls back to the
// configured branch. Tag refs (release events carry the tag name) are
// resolved before branch refs of the same name.
func (c *Client) Checkout(project appcfg.Project, ref, dir string) (CheckoutResult, error) {
	return c.withRetry("checkout", project.Name, func() (CheckoutResult, error) {
		return c.checkoutOnce(project, ref, dir)
	})
}

func (c *Client) checkoutOnce(project appcfg.Project, ref, dir string) (CheckoutResult, error) {
	repoPath := filepath.Join(dir, project.Name)
	if ref == "" {
		ref = project.Branch
	}
	slog.Debug("Checking out project",
		logfields.URL(project.URL), logfields.Project(project.Name),
		logfields.Ref(ref), logfields.Path(repoPath))

	var auth transport.AuthMethod
	if project.Auth != nil {
		var err error
		auth, err = c.getAuthentication(project.Auth)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("setup authentication: %w", err)
		}
	}

	repository, err := c.openAndFetch(repoPath, project.URL, auth)
	if err != nil {
		// No reusable clone at the path: start over.
		if err := os.RemoveAll(repoPath); err != nil {
			return CheckoutResult{}, fmt.Errorf("remove existing checkout: %w", err)
		}
		cloneOptions := &git.CloneOptions{URL: project.URL, Auth: auth}
		if c.buildCfg != nil && c.buildCfg.ShallowDepth > 0 {
			cloneOptions.Depth = c.buildCfg.ShallowDepth
		}
		repository, err = git.PlainClone(repoPath, false, cloneOptions)
		if err != nil {
			return CheckoutResult{}, classifyGitError("clone", project.URL, err)
		}
	}

	if ref != "" {
		if err := checkoutRef(repository, ref); err != nil {
			return CheckoutResult{}, err
		}
	}

	result := CheckoutResult{Path: repoPath, Ref: ref}
	if headRef, herr := repository.Head(); herr == nil {
		result.Commit = headRef.Hash().String()
	}
	slog.Info("Project checked out",
		logfields.Project(project.Name), logfields.Ref(ref),
		slog.String("commit", shortHash(result.Commit)), logfields.Path(repoPath))
	return result, nil
}

// openAndFetch reuses an existing clone of the project by fetching new refs
// and tags. Any error (no repository, different origin, failed fetch) makes
// the caller clone fresh instead.
func (c *Client) openAndFetch(repoPath, url string, auth transport.AuthMethod) (*git.Repository, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, err
	}

	remote, err := repository.Remote("origin")
	if err != nil {
		return nil, err
	}
	remoteCfg := remote.Config()
	if len(remoteCfg.URLs) == 0 || remoteCfg.URLs[0] != url {
		return nil, fmt.Errorf("checkout tracks %v, want %s", remoteCfg.URLs, url)
	}

	fetchOptions := &git.FetchOptions{Auth: auth, Tags: git.AllTags, Force: true}
	if c.buildCfg != nil && c.buildCfg.ShallowDepth > 0 {
		fetchOptions.Depth = c.buildCfg.ShallowDepth
	}
	if err := repository.Fetch(fetchOptions); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, classifyGitError("fetch", url, err)
	}
	return repository, nil
}

// checkoutRef moves the worktree to the given ref, trying tags first since
// release triggers carry tag names. Remote refs are preferred over local
// branches: after a fetch the local branch may lag the remote.
func checkoutRef(repository *git.Repository, ref string) error {
	wt, err := repository.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewTagReferenceName(ref),
		plumbing.NewRemoteReferenceName("origin", ref),
		plumbing.NewBranchReferenceName(ref),
	}
	var lastErr error
	for _, name := range candidates {
		resolved, rerr := repository.Reference(name, true)
		if rerr != nil {
			lastErr = rerr
			continue
		}
		if cerr := wt.Checkout(&git.CheckoutOptions{Hash: resolved.Hash(), Force: true}); cerr != nil {
			return fmt.Errorf("checkout %s: %w", ref, cerr)
		}
		return nil
	}

	// Maybe a bare commit hash.
	if hash := plumbing.NewHash(ref); !hash.IsZero() && len(ref) >= 7 {
		if cerr := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); cerr == nil {
			return nil
		}
	}

	return &RefNotFoundError{Ref: ref, Err: lastErr}
}

// SourceDir resolves the package root inside a checkout, honoring the
// configured subdirectory. Subdir escapes are rejected.
func SourceDir(checkoutPath string, project appcfg.Project) (string, error) {
	if project.Subdir == "" {
		return checkoutPath, nil
	}
	sub := filepath.Clean(project.Subdir)
	if sub == ".." || strings.HasPrefix(sub, ".."+string(filepath.Separator)) || filepath.IsAbs(sub) {
		return "", fmt.Errorf("subdir %q escapes the checkout", project.Subdir)
	}
	dir := filepath.Join(checkoutPath, sub)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("subdir %q not found in checkout", project.Subdir)
	}
	return dir, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
