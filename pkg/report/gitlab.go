package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xanzy/go-gitlab"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// GitLab tracks every report as an issue in one project: opened on start,
// failure text appended to the description, closed on success.
type GitLab struct {
	client  *gitlab.Client
	project string
	labels  []string
	logger  *slog.Logger
}

// GitLabOption configures a GitLab sink.
type GitLabOption func(*gitlabConfig)

type gitlabConfig struct {
	baseURL    string
	httpClient *http.Client
	labels     []string
	logger     *slog.Logger
}

// WithGitLabURL points the sink at a self-hosted instance.
func WithGitLabURL(u string) GitLabOption {
	return func(c *gitlabConfig) { c.baseURL = u }
}

// WithGitLabHTTPClient sets the HTTP client.
func WithGitLabHTTPClient(hc *http.Client) GitLabOption {
	return func(c *gitlabConfig) { c.httpClient = hc }
}

// WithLabels adds labels to every issue.
func WithLabels(labels ...string) GitLabOption {
	return func(c *gitlabConfig) { c.labels = append(c.labels, labels...) }
}

// WithGitLabLogger sets the logger.
func WithGitLabLogger(l *slog.Logger) GitLabOption {
	return func(c *gitlabConfig) { c.logger = l }
}

// NewGitLab creates an issue sink for project (numeric id or "group/name").
func NewGitLab(token, project string, opts ...GitLabOption) (*GitLab, error) {
	if project == "" {
		return nil, fmt.Errorf("gitlab report: project is required")
	}
	var cfg gitlabConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var clientOpts []gitlab.ClientOptionFunc
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(cfg.httpClient))
	}
	client, err := gitlab.NewClient(token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gitlab report: %w", err)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &GitLab{client: client, project: project, labels: cfg.labels, logger: cfg.logger}, nil
}

func (g *GitLab) ReportStart(ctx context.Context, rc core.ReportContext) (core.Ticket, error) {
	opt := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(security.TruncateTitle(rc.Title)),
		Description: gitlab.Ptr(rc.Description),
	}
	if labels := append(append([]string(nil), g.labels...), rc.Labels...); len(labels) > 0 {
		opt.Labels = gitlab.Ptr(gitlab.LabelOptions(labels))
	}
	issue, _, err := g.client.Issues.CreateIssue(g.project, opt, gitlab.WithContext(ctx))
	if err != nil {
		return core.Ticket{}, fmt.Errorf("gitlab report: create issue: %w", err)
	}
	g.logger.Info("issue created", "project", g.project, "iid", issue.IID)
	return core.Ticket{ID: strconv.Itoa(issue.IID), URL: issue.WebURL}, nil
}

func (g *GitLab) ReportFailure(ctx context.Context, t core.Ticket, reason string) error {
	return g.append(ctx, t, reason, false)
}

func (g *GitLab) ReportSuccess(ctx context.Context, t core.Ticket, message string) error {
	return g.append(ctx, t, message, true)
}

// append adds text to the issue description and optionally closes it.
// A ticket without an id (ReportStart failed) is ignored.
func (g *GitLab) append(ctx context.Context, t core.Ticket, text string, closeIssue bool) error {
	if t.ID == "" {
		return nil
	}
	iid, err := strconv.Atoi(t.ID)
	if err != nil {
		return fmt.Errorf("gitlab report: ticket %q is not an issue iid", t.ID)
	}
	issue, _, err := g.client.Issues.GetIssue(g.project, iid, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("gitlab report: get issue %d: %w", iid, err)
	}

	opt := &gitlab.UpdateIssueOptions{
		Description: gitlab.Ptr(issue.Description + "\n\n" + security.SanitizeErrorMessage(text)),
	}
	if closeIssue {
		opt.StateEvent = gitlab.Ptr("close")
	}
	if _, _, err := g.client.Issues.UpdateIssue(g.project, iid, opt, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab report: update issue %d: %w", iid, err)
	}
	g.logger.Info("issue updated", "project", g.project, "iid", iid, "closed", closeIssue)
	return nil
}
