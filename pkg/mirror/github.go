package mirror

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GitHub writes files through the contents API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// NewGitHub creates a target for "owner/repo". branch may be empty for the
// default branch; baseURL may be empty for api.github.com.
func NewGitHub(token, baseURL, repository, branch string, hc *http.Client) (*GitHub, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github mirror: repository %q is not owner/name", repository)
	}
	client := github.NewClient(hc)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("github mirror: base url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHub{client: client, owner: owner, repo: repo, branch: branch}, nil
}

func (g *GitHub) Name() string { return "GitHub" }

func (g *GitHub) Upsert(ctx context.Context, repoPath string, content []byte, message string) (Change, error) {
	var getOpts *github.RepositoryContentGetOptions
	if g.branch != "" {
		getOpts = &github.RepositoryContentGetOptions{Ref: g.branch}
	}
	existing, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, repoPath, getOpts)

	opts := &github.RepositoryContentFileOptions{Content: content}
	if g.branch != "" {
		opts.Branch = github.String(g.branch)
	}
	switch {
	case err == nil && existing != nil:
		opts.Message = github.String(messageFor(ChangeUpdated, message))
		opts.SHA = github.String(existing.GetSHA())
		if _, _, err := g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, repoPath, opts); err != nil {
			return "", fmt.Errorf("github mirror: update %s: %w", repoPath, err)
		}
		return ChangeUpdated, nil
	case err == nil:
		return "", fmt.Errorf("github mirror: %s is a directory", repoPath)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		opts.Message = github.String(messageFor(ChangeCreated, message))
		if _, _, err := g.client.Repositories.CreateFile(ctx, g.owner, g.repo, repoPath, opts); err != nil {
			return "", fmt.Errorf("github mirror: create %s: %w", repoPath, err)
		}
		return ChangeCreated, nil
	default:
		return "", fmt.Errorf("github mirror: get %s: %w", repoPath, err)
	}
}
