package mirror

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xanzy/go-gitlab"
)

// GitLab writes files through the repository files API.
type GitLab struct {
	client  *gitlab.Client
	project string
	branch  string
}

// NewGitLab creates a target for project on branch. baseURL may be empty
// for gitlab.com.
func NewGitLab(token, baseURL, project, branch string, hc *http.Client) (*GitLab, error) {
	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	if hc != nil {
		opts = append(opts, gitlab.WithHTTPClient(hc))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("gitlab mirror: %w", err)
	}
	if branch == "" {
		branch = "main"
	}
	return &GitLab{client: client, project: project, branch: branch}, nil
}

func (g *GitLab) Name() string { return "GitLab" }

func (g *GitLab) Upsert(ctx context.Context, repoPath string, content []byte, message string) (Change, error) {
	_, resp, err := g.client.RepositoryFiles.GetFile(g.project, repoPath,
		&gitlab.GetFileOptions{Ref: gitlab.Ptr(g.branch)}, gitlab.WithContext(ctx))
	switch {
	case err == nil:
		_, _, err = g.client.RepositoryFiles.UpdateFile(g.project, repoPath, &gitlab.UpdateFileOptions{
			Branch:        gitlab.Ptr(g.branch),
			Content:       gitlab.Ptr(string(content)),
			CommitMessage: gitlab.Ptr(messageFor(ChangeUpdated, message)),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("gitlab mirror: update %s: %w", repoPath, err)
		}
		return ChangeUpdated, nil
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		_, _, err = g.client.RepositoryFiles.CreateFile(g.project, repoPath, &gitlab.CreateFileOptions{
			Branch:        gitlab.Ptr(g.branch),
			Content:       gitlab.Ptr(string(content)),
			CommitMessage: gitlab.Ptr(messageFor(ChangeCreated, message)),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("gitlab mirror: create %s: %w", repoPath, err)
		}
		return ChangeCreated, nil
	default:
		return "", fmt.Errorf("gitlab mirror: get %s: %w", repoPath, err)
	}
}
