// Package deploy publishes the output directory to a branch of a git
// remote, the way static hosting branches (gh-pages) expect it.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// NameDeploy is the task name used in logs and metrics.
const NameDeploy = "deploy"

// workDir is the scratch clone, relative to the project state directory.
const workDir = "publish"

// Publisher pushes the contents of a directory to a remote branch. Each
// publish adds one commit on top of the branch, so history is kept.
type Publisher struct {
	Git       string
	Remote    string
	Branch    string
	Message   string
	UserName  string
	UserEmail string
	// WorkDir is recreated on every publish.
	WorkDir string
	// ProjectDir resolves Remote when it names a remote of the project
	// repository rather than a URL or path.
	ProjectDir string
	Now        func() time.Time
}

// Result describes one publish.
type Result struct {
	Changed bool
	Commit  string
	Files   int
}

// NewPublisher maps the deploy section of the configuration.
func NewPublisher(cfg model.Config) *Publisher {
	return &Publisher{
		Git:        cfg.Deploy.GitCommand,
		Remote:     cfg.Deploy.Remote,
		Branch:     cfg.Deploy.Branch,
		Message:    cfg.Deploy.Message,
		UserName:   cfg.Deploy.UserName,
		UserEmail:  cfg.Deploy.UserEmail,
		WorkDir:    cfg.StatePath(filepath.Join(model.StateDir, workDir)),
		ProjectDir: cfg.Root,
	}
}

// Publish makes the branch tip contain exactly the files of dir. When the
// tree is unchanged nothing is committed or pushed.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("output directory %s is not a directory", dir)
	}

	remote, err := p.remoteURL(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := os.RemoveAll(p.WorkDir); err != nil {
		return Result{}, fmt.Errorf("reset work dir: %w", err)
	}
	if err := os.MkdirAll(p.WorkDir, 0755); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	git := gitCommand{bin: p.gitBin(), dir: p.WorkDir}

	setup := [][]string{
		{"init", "-q"},
		{"config", "user.name", p.UserName},
		{"config", "user.email", p.UserEmail},
		{"config", "commit.gpgsign", "false"},
		{"remote", "add", "origin", remote},
	}
	for _, args := range setup {
		if _, err := git.run(ctx, args...); err != nil {
			return Result{}, err
		}
	}

	heads, err := git.run(ctx, "ls-remote", "--heads", "origin", p.Branch)
	if err != nil {
		return Result{}, err
	}
	if heads != "" {
		if _, err := git.run(ctx, "fetch", "-q", "origin", p.Branch); err != nil {
			return Result{}, err
		}
		if _, err := git.run(ctx, "checkout", "-q", "-b", p.Branch, "FETCH_HEAD"); err != nil {
			return Result{}, err
		}
	} else if _, err := git.run(ctx, "symbolic-ref", "HEAD", "refs/heads/"+p.Branch); err != nil {
		return Result{}, err
	}

	if err := clearWorkTree(p.WorkDir); err != nil {
		return Result{}, err
	}
	files, err := copyTree(dir, p.WorkDir)
	if err != nil {
		return Result{}, err
	}

	if _, err := git.run(ctx, "add", "-A"); err != nil {
		return Result{}, err
	}
	status, err := git.run(ctx, "status", "--porcelain")
	if err != nil {
		return Result{}, err
	}
	if status == "" {
		head, _ := git.run(ctx, "rev-parse", "HEAD")
		return Result{Changed: false, Commit: head, Files: files}, nil
	}

	if _, err := git.run(ctx, "commit", "-q", "-m", p.message()); err != nil {
		return Result{}, err
	}
	if _, err := git.run(ctx, "push", "-q", "origin", "HEAD:refs/heads/"+p.Branch); err != nil {
		return Result{}, err
	}
	head, err := git.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return Result{}, err
	}
	return Result{Changed: true, Commit: head, Files: files}, nil
}

func (p *Publisher) gitBin() string {
	if p.Git == "" {
		return "git"
	}
	return p.Git
}

func (p *Publisher) message() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	msg := p.Message
	if msg == "" {
		msg = "Update"
	}
	return msg + " " + now().UTC().Format(time.RFC3339)
}

// remoteURL returns Remote as is when it looks like a URL or path, and
// otherwise asks the project repository for the URL of that remote.
func (p *Publisher) remoteURL(ctx context.Context) (string, error) {
	if p.Remote == "" {
		return "", errors.New("deploy.remote is empty")
	}
	if strings.ContainsAny(p.Remote, "/:\\") {
		return p.Remote, nil
	}
	url, err := gitCommand{bin: p.gitBin(), dir: p.ProjectDir}.run(ctx, "remote", "get-url", p.Remote)
	if err != nil {
		return "", fmt.Errorf("resolve remote %q: %w", p.Remote, err)
	}
	return url, nil
}

// clearWorkTree removes everything but the repository metadata.
func clearWorkTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read work dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear work dir: %w", err)
		}
	}
	return nil
}

func copyTree(src, dst string) (int, error) {
	var n int
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if err := fsutil.CopyFile(p, filepath.Join(dst, rel)); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("copy output: %w", err)
	}
	return n, nil
}

// Deploy publishes the output directory with pub.
func Deploy(cfg model.Config, pub *Publisher) *task.Task {
	if pub == nil {
		pub = NewPublisher(cfg)
	}
	dist := cfg.DistPath("")
	writes := []string{filepath.ToSlash(filepath.Join(model.StateDir, workDir))}

	return task.Leaf(NameDeploy, writes, func(ctx context.Context, env task.Env) error {
		res, err := pub.Publish(ctx, dist)
		if err != nil {
			return err
		}
		if !res.Changed {
			env.Logger.Info("nothing to deploy", "branch", pub.Branch, "commit", res.Commit)
			return nil
		}
		env.Logger.Info("deployed", "branch", pub.Branch, "commit", res.Commit, "files", res.Files)
		return nil
	})
}
