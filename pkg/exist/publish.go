// Package exist publishes edition files to an eXist-db server: fetch a file,
// validate it against a RelaxNG schema, then create or update it in a
// collection. Each attempt is tracked through a reporting sink.
package exist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/report"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// Status is the result code of a publish attempt.
type Status string

const (
	StatusFetchFailed      Status = "fetch_failed"
	StatusValidationFailed Status = "validation_failed"
	StatusUploadFailed     Status = "upload_failed"
	StatusCreated          Status = "created"
	StatusUpdated          Status = "updated"
)

// maxFileSize bounds a fetched edition file.
const maxFileSize = 256 << 20

// Result describes one publish attempt.
type Result struct {
	ID          string
	File        string
	Status      Status
	Diagnostics []Diagnostic
	Ticket      core.Ticket
}

// Config holds publisher settings.
type Config struct {
	// FetchServer is the base URL files are fetched from; the id is appended.
	FetchServer string
	// Server is the base URL of the target collections.
	Server   string
	User     string
	Password string
	// Schema is the path of the RelaxNG schema.
	Schema string
}

// Publisher runs the fetch, validate, upload workflow.
type Publisher struct {
	config    Config
	validator Validator
	reporter  core.Reporter
	http      *http.Client
	tmpDir    string
	logger    *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithValidator replaces the xmllint validator.
func WithValidator(v Validator) Option {
	return func(p *Publisher) { p.validator = v }
}

// WithReporter sets the reporting sink.
func WithReporter(r core.Reporter) Option {
	return func(p *Publisher) { p.reporter = r }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Publisher) { p.http = hc }
}

// WithTempDir sets where fetched files are stored.
func WithTempDir(dir string) Option {
	return func(p *Publisher) { p.tmpDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher creates a publisher.
func NewPublisher(cfg Config, opts ...Option) (*Publisher, error) {
	if cfg.FetchServer == "" || cfg.Server == "" {
		return nil, fmt.Errorf("exist: fetch server and target server are required")
	}
	p := &Publisher{
		config:    cfg,
		validator: NewXMLLint(),
		reporter:  report.Nop{},
		http:      &http.Client{Timeout: 2 * time.Minute},
		tmpDir:    os.TempDir(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish fetches id, validates it and stores it as texts/<id>.xml in
// collection. Failures are reported and also returned as an error.
func (p *Publisher) Publish(ctx context.Context, id, collection string) (Result, error) {
	res := Result{ID: id}
	log := p.logger.With("id", id, "collection", collection)

	path, err := p.fetch(ctx, id)
	if err != nil {
		res.Status = StatusFetchFailed
		p.reportOnce(ctx, &res,
			fmt.Sprintf("%s not found on %s", id, p.config.FetchServer),
			fmt.Sprintf("Could not fetch file with ID %s from the server %s: %v", id, p.config.FetchServer, err))
		log.Error("fetch failed", "error", err)
		return res, err
	}
	defer os.Remove(path)
	res.File = filepath.Base(path)

	ok, diags, err := p.validator.Validate(ctx, path, p.config.Schema)
	switch {
	case err != nil:
		res.Status = StatusValidationFailed
		p.reportOnce(ctx, &res,
			fmt.Sprintf("Validation error for %s", id),
			fmt.Sprintf("Exception occurred while validating %s: %v", id, err))
		log.Error("validation could not run", "error", err)
		return res, err
	case !ok:
		res.Status = StatusValidationFailed
		res.Diagnostics = diags
		p.reportOnce(ctx, &res,
			fmt.Sprintf("%s: Validation failed - %s", StatusValidationFailed, id),
			"Validation errors:\n"+TaskList(diags))
		log.Warn("validation failed", "diagnostics", len(diags))
		return res, fmt.Errorf("exist: %s is not valid against %s (%d problems)", id, p.config.Schema, len(diags))
	}

	ticket, err := p.reporter.ReportStart(ctx, core.ReportContext{
		Title:       "Processing file: " + res.File,
		Description: fmt.Sprintf("Starting upload/update for %s in collection %s.", res.File, collection),
	})
	if err != nil {
		log.Warn("report start failed", "error", err)
	}
	res.Ticket = ticket

	status, err := p.store(ctx, path, collection)
	res.Status = status
	if err != nil {
		msg := fmt.Sprintf("%s: Failed to upload file %s: %v", StatusUploadFailed, res.File, err)
		if rerr := p.reporter.ReportFailure(ctx, ticket, msg); rerr != nil {
			log.Warn("report failure failed", "error", rerr)
		}
		log.Error("upload failed", "error", err)
		return res, err
	}

	msg := fmt.Sprintf("%s: Uploaded file %s successfully.", status, res.File)
	if rerr := p.reporter.ReportSuccess(ctx, ticket, msg); rerr != nil {
		log.Warn("report success failed", "error", rerr)
	}
	log.Info("file published", "status", status)
	return res, nil
}

func (p *Publisher) reportOnce(ctx context.Context, res *Result, title, description string) {
	t, err := p.reporter.ReportStart(ctx, core.ReportContext{Title: title, Description: description})
	if err != nil {
		p.logger.Warn("report start failed", "error", err)
	}
	res.Ticket = t
}

// fetch downloads <fetch server><id> into the temp dir as <id>.xml.
func (p *Publisher) fetch(ctx context.Context, id string) (string, error) {
	dest, err := security.SafeJoin(p.tmpDir, id+".xml")
	if err != nil || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("exist: invalid id %q", id)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.FetchServer+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &core.HTTPError{Op: "fetch " + id, StatusCode: resp.StatusCode, Body: security.SanitizeErrorMessage(string(body))}
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxFileSize {
		err = core.ErrArchiveTooBig
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("fetch %s: %w", id, err)
	}
	return dest, nil
}

// store PUTs the file to <server><collection>/texts/<file>. A HEAD before
// decides whether this creates or replaces the resource.
func (p *Publisher) store(ctx context.Context, path, collection string) (Status, error) {
	target := strings.TrimRight(p.config.Server, "/") + "/" +
		strings.Trim(collection, "/") + "/texts/" + url.PathEscape(filepath.Base(path))

	exists, err := p.exists(ctx, target)
	if err != nil {
		return StatusUploadFailed, err
	}

	f, err := os.Open(path)
	if err != nil {
		return StatusUploadFailed, err
	}
	defer f.Close()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return StatusUploadFailed, err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.SetBasicAuth(p.config.User, p.config.Password)
	resp, err := p.http.Do(req)
	if err != nil {
		return StatusUploadFailed, fmt.Errorf("upload: %s", security.Redact(err.Error(), p.config.Password))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StatusUploadFailed, &core.HTTPError{Op: "upload", StatusCode: resp.StatusCode, Body: security.SanitizeErrorMessage(string(body))}
	}
	if exists {
		return StatusUpdated, nil
	}
	return StatusCreated, nil
}

func (p *Publisher) exists(ctx context.Context, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(p.config.User, p.config.Password)
	resp, err := p.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", target, err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &core.HTTPError{Op: "check " + target, StatusCode: resp.StatusCode}
	}
}
