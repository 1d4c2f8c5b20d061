package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/materializer"
)

// CodemagicFile is the workflow file Codemagic reads from the repository root.
const CodemagicFile = "codemagic.yaml"

// Commit describes what Publish wrote.
type Commit struct {
	SHA    string   `json:"sha"`
	Branch string   `json:"branch"`
	Files  []string `json:"files"`
}

// Publisher commits generated games to a GitHub repository so that
// Codemagic can build them.
type Publisher struct {
	client     *github.Client
	owner      string
	repo       string
	baseBranch string
}

// NewPublisher creates a publisher for owner/repo. New branches fork from baseBranch.
func NewPublisher(client *github.Client, repo, baseBranch string) (*Publisher, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &Publisher{client: client, owner: owner, repo: name, baseBranch: baseBranch}, nil
}

// BranchName is the branch a result is published to.
func BranchName(result *game.GenerationResult) string {
	return "games/" + materializer.DirName(result)
}

// Publish commits result's files and a codemagic.yaml holding one workflow
// per config to a dedicated branch.
func (p *Publisher) Publish(ctx context.Context, result *game.GenerationResult, configs map[codemagic.Target]*codemagic.BuildConfig) (*Commit, error) {
	branch := BranchName(result)
	for _, cfg := range configs {
		cfg.Branch = branch
	}

	workflow, err := WorkflowYAML(result.Platform, configs)
	if err != nil {
		return nil, err
	}

	names := result.FileNames()
	entries := make([]*github.TreeEntry, 0, len(names)+1)
	for _, name := range names {
		entries = append(entries, blobEntry(name, result.Files[name]))
	}
	entries = append(entries, blobEntry(CodemagicFile, string(workflow)))

	parentSHA, err := p.ensureBranch(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create branch ref: %w", err)
	}

	parent, _, err := p.client.Git.GetCommit(ctx, p.owner, p.repo, parentSHA)
	if err != nil {
		return nil, fmt.Errorf("failed to get base commit: %w", err)
	}

	tree, _, err := p.client.Git.CreateTree(ctx, p.owner, p.repo, parent.GetTree().GetSHA(), entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree: %w", err)
	}

	message := fmt.Sprintf("Add %s %s game %s", result.Platform, result.GameType, result.ID)
	commit, _, err := p.client.Git.CreateCommit(ctx, p.owner, p.repo, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit: %w", err)
	}

	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}
	if _, _, err := p.client.Git.UpdateRef(ctx, p.owner, p.repo, ref, false); err != nil {
		return nil, fmt.Errorf("failed to update ref: %w", err)
	}

	zap.L().Info("game published",
		zap.String("repo", p.owner+"/"+p.repo),
		zap.String("branch", branch),
		zap.String("sha", commit.GetSHA()))

	return &Commit{
		SHA:    commit.GetSHA(),
		Branch: branch,
		Files:  append(names, CodemagicFile),
	}, nil
}

// ensureBranch returns the head SHA of branch, creating it from the base
// branch when missing.
func (p *Publisher) ensureBranch(ctx context.Context, branch string) (string, error) {
	ref, _, err := p.client.Git.GetRef(ctx, p.owner, p.repo, "refs/heads/"+branch)
	if err == nil {
		return ref.GetObject().GetSHA(), nil
	}
	if !isNotFound(err) {
		return "", err
	}

	base, _, err := p.client.Git.GetRef(ctx, p.owner, p.repo, "refs/heads/"+p.baseBranch)
	if err != nil {
		return "", fmt.Errorf("failed to get base branch: %w", err)
	}

	newRef := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: base.Object.SHA},
	}
	if _, _, err := p.client.Git.CreateRef(ctx, p.owner, p.repo, newRef); err != nil {
		return "", fmt.Errorf("failed to create branch: %w", err)
	}
	return base.GetObject().GetSHA(), nil
}

type workflowFile struct {
	Workflows map[string]*codemagic.BuildConfig `json:"workflows"`
}

// WorkflowYAML renders configs as a codemagic.yaml document keyed by "<platform>-<target>".
func WorkflowYAML(platform game.Platform, configs map[codemagic.Target]*codemagic.BuildConfig) ([]byte, error) {
	doc := workflowFile{Workflows: make(map[string]*codemagic.BuildConfig, len(configs))}
	for target, cfg := range configs {
		doc.Workflows[fmt.Sprintf("%s-%s", platform, target)] = cfg
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", CodemagicFile, err)
	}
	return b, nil
}

func blobEntry(path, content string) *github.TreeEntry {
	return &github.TreeEntry{
		Path:    github.String(path),
		Mode:    github.String("100644"),
		Type:    github.String("blob"),
		Content: github.String(content),
	}
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// Remote authorizes a fresh client for every Publish call, so GitHub App
// installation tokens never go stale in long-running processes.
type Remote struct {
	Credentials Credentials
	Repo        string
	BaseBranch  string
}

// Publish implements the same contract as Publisher.Publish.
func (r *Remote) Publish(ctx context.Context, result *game.GenerationResult, configs map[codemagic.Target]*codemagic.BuildConfig) (*Commit, error) {
	client, err := NewGitHubClient(ctx, r.Credentials, r.Repo)
	if err != nil {
		return nil, fmt.Errorf("github auth: %w", err)
	}
	p, err := NewPublisher(client, r.Repo, r.BaseBranch)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, result, configs)
}
