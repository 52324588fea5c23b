// Package mirror copies processed files into source-control hosting.
//
// Every Target implements the same explicit check-then-act upsert: look the
// file up, update it when it exists, create it when the host answers
// not-found, and return any other error unchanged.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// Change says what an upsert did.
type Change string

const (
	ChangeCreated Change = "created"
	ChangeUpdated Change = "updated"
)

// Default commit messages.
const (
	CreateMessage = "Adding new file"
	UpdateMessage = "Updating file"
)

// Target is a repository files can be written to.
type Target interface {
	// Name identifies the target in reports, e.g. "GitLab".
	Name() string
	// Upsert writes content at repoPath. An empty message selects the
	// default commit message for the change.
	Upsert(ctx context.Context, repoPath string, content []byte, message string) (Change, error)
}

// Result is the outcome for one mirrored file.
type Result struct {
	Path   string
	Change Change
	Err    error
}

// DirOption configures MirrorDir.
type DirOption func(*dirConfig)

type dirConfig struct {
	exts []string
}

// WithExtensions restricts MirrorDir to files with these extensions.
// The default is ".xml".
func WithExtensions(exts ...string) DirOption {
	return func(c *dirConfig) { c.exts = exts }
}

// MirrorDir upserts every matching file below dir to prefix/<relative path>.
// A failing file does not stop the others; the joined errors are returned.
func MirrorDir(ctx context.Context, t Target, dir, prefix string, opts ...DirOption) ([]Result, error) {
	cfg := dirConfig{exts: []string{".xml"}}
	for _, opt := range opts {
		opt(&cfg)
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matchExt(p, cfg.exts) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: walk %s: %w", dir, err)
	}

	results := make([]Result, 0, len(files))
	var errs []error
	for _, f := range files {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			return results, err
		}
		repoPath := path.Join(prefix, filepath.ToSlash(rel))
		res := Result{Path: repoPath}
		content, err := os.ReadFile(f)
		if err == nil {
			res.Change, err = t.Upsert(ctx, repoPath, content, "")
		}
		if err != nil {
			res.Err = err
			errs = append(errs, fmt.Errorf("%s: %w", repoPath, err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Changed counts the files that were written.
func Changed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.Change != "" {
			n++
		}
	}
	return n
}

// Copy mirrors one local file to subdir/<base name> and tracks the copy
// as a report: opened before, closed on success, annotated on failure.
func Copy(ctx context.Context, t Target, r core.Reporter, file, subdir string) (Change, error) {
	repoPath := path.Join(subdir, filepath.Base(file))
	ticket, err := r.ReportStart(ctx, core.ReportContext{
		Title:       fmt.Sprintf("Upload %s to %s", repoPath, t.Name()),
		Description: fmt.Sprintf("Started upload of `%s` to %s", repoPath, t.Name()),
	})
	if err != nil {
		return "", fmt.Errorf("mirror: open report: %w", err)
	}

	content, err := os.ReadFile(file)
	var change Change
	if err == nil {
		change, err = t.Upsert(ctx, repoPath, content, "")
	}
	if err != nil {
		msg := fmt.Sprintf("Failed to create/update file %s: %v", repoPath, err)
		if rerr := r.ReportFailure(ctx, ticket, msg); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return "", err
	}

	verb := "Updated"
	if change == ChangeCreated {
		verb = "Created new"
	}
	if err := r.ReportSuccess(ctx, ticket, fmt.Sprintf("%s file %s on %s", verb, repoPath, t.Name())); err != nil {
		return change, fmt.Errorf("mirror: close report: %w", err)
	}
	return change, nil
}

func matchExt(p string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func messageFor(change Change, message string) string {
	if message != "" {
		return message
	}
	if change == ChangeCreated {
		return CreateMessage
	}
	return UpdateMessage
}
