// Package editions automates the Transkribus side of a digital edition:
// upload scans, run layout analysis, OCR and export for every new document,
// download the results and report the outcome.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a compact API surface.
//
// Basic usage:
//
//	client := editions.NewClient()
//	client.Login(ctx, email, password)
//
//	store, _ := editions.OpenStore(editions.DriverSQLite, "editions.db")
//	store.Migrate(ctx)
//
//	orch, _ := editions.NewOrchestrator(client,
//	    editions.PollInterval(5*time.Second),
//	    editions.Timeout(2*time.Hour))
//
//	driver, _ := editions.NewDriver(client, orch,
//	    editions.WithStore(store),
//	    editions.WithDownloadDir("exports"))
//
//	summary, err := driver.Run(ctx, editions.Plan{CollectionIDs: []string{"42"}})
package editions

import (
	"net/http"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/orchestrator"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/pipeline"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/report"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/storage"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/transkribus"
)

// Type aliases
type (
	// JobKind names a remote processing stage.
	JobKind = core.JobKind

	// JobHandle references a submitted remote job.
	JobHandle = core.JobHandle

	// DocumentRef identifies a remote document.
	DocumentRef = core.DocumentRef

	// Collection is a remote document collection.
	Collection = core.Collection

	// UploadBatch is one document to create from local images.
	UploadBatch = core.UploadBatch

	// Outcome is the terminal result of one stage.
	Outcome = core.Outcome

	// PipelineRun tracks one document through the stage chain.
	PipelineRun = core.PipelineRun

	// StageCheckpoint records one finished stage of a run.
	StageCheckpoint = core.StageCheckpoint

	// Remote is the full surface of the document-analysis service.
	Remote = core.Remote

	// Reporter is the reporting sink.
	Reporter = core.Reporter

	// RunStore persists pipeline bookkeeping.
	RunStore = core.RunStore

	// Event is the interface for all pipeline events.
	Event = core.Event

	// RunStarted is emitted when a document enters the stage chain.
	RunStarted = core.RunStarted

	// StageSubmitted is emitted after the service accepted a job.
	StageSubmitted = core.StageSubmitted

	// StagePolled is emitted after every status query.
	StagePolled = core.StagePolled

	// StageFinished is emitted when a stage reaches its outcome.
	StageFinished = core.StageFinished

	// RunFinished is emitted when a document leaves the stage chain.
	RunFinished = core.RunFinished

	// UploadFinished is emitted after the upload phase.
	UploadFinished = core.UploadFinished

	// PlanFinished is emitted at the end of a pipeline pass.
	PlanFinished = core.PlanFinished

	// SubmissionError reports a rejected work item.
	SubmissionError = core.SubmissionError

	// TimeoutError reports an expired wait.
	TimeoutError = core.TimeoutError

	// NoRetryError marks an error that must not be retried.
	NoRetryError = core.NoRetryError

	// Client talks to the Transkribus REST API.
	Client = transkribus.Client

	// ClientOption configures a Client.
	ClientOption = transkribus.Option

	// Orchestrator drives a single stage to its outcome.
	Orchestrator = orchestrator.Orchestrator

	// OrchestratorOption configures an Orchestrator.
	OrchestratorOption = orchestrator.Option

	// Driver runs the whole pipeline.
	Driver = pipeline.Driver

	// Option configures a Driver.
	Option = pipeline.Option

	// Plan describes one pipeline pass.
	Plan = pipeline.Plan

	// Summary aggregates a pipeline pass.
	Summary = pipeline.Summary

	// RunResult is the outcome of one document.
	RunResult = pipeline.RunResult

	// Schedule determines when the next pass runs.
	Schedule = pipeline.Schedule

	// RunQuery filters ListRuns.
	RunQuery = core.RunQuery

	// RunStatus is the state of a PipelineRun.
	RunStatus = core.RunStatus

	// GormStore implements RunStore using GORM.
	GormStore = storage.GormStore
)

// Stage kinds
const (
	KindUpload         = core.KindUpload
	KindLayoutAnalysis = core.KindLayoutAnalysis
	KindOCR            = core.KindOCR
	KindExport         = core.KindExport
)

// Outcome statuses
const (
	OutcomeSuccess   = core.OutcomeSuccess
	OutcomeFailed    = core.OutcomeFailed
	OutcomeTimedOut  = core.OutcomeTimedOut
	OutcomeCancelled = core.OutcomeCancelled
)

// Run statuses
const (
	RunRunning  = core.RunRunning
	RunSuccess  = core.RunSuccess
	RunFailed   = core.RunFailed
	RunTimedOut = core.RunTimedOut
)

// Store drivers
const (
	DriverSQLite   = storage.DriverSQLite
	DriverPostgres = storage.DriverPostgres
)

// Security limits
const (
	MaxConcurrency        = security.MaxConcurrency
	MaxTitleLength        = security.MaxTitleLength
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxArchiveSize        = security.MaxArchiveSize
)

// Error variables
var (
	ErrCancelled       = core.ErrCancelled
	ErrTimeoutRequired = core.ErrTimeoutRequired
	ErrNotFound        = core.ErrNotFound
	ErrNotLoggedIn     = core.ErrNotLoggedIn
	ErrInvalidID       = core.ErrInvalidID
)

// NewClient creates a Transkribus client. Call Login before use.
func NewClient(opts ...ClientOption) *Client {
	return transkribus.New(opts...)
}

// NewOrchestrator creates an orchestrator polling through lister.
func NewOrchestrator(lister core.JobLister, opts ...OrchestratorOption) (*Orchestrator, error) {
	return orchestrator.New(lister, opts...)
}

// NewDriver creates a pipeline driver.
func NewDriver(remote Remote, orch *Orchestrator, opts ...Option) (*Driver, error) {
	return pipeline.New(remote, orch, opts...)
}

// OpenStore connects to the run database.
func OpenStore(driver, dsn string) (*GormStore, error) {
	return storage.Open(driver, dsn)
}

// ScanUploadDir turns every image folder below dir into an upload batch.
func ScanUploadDir(dir string) ([]UploadBatch, error) {
	return transkribus.ScanUploadDir(dir)
}

// Stages returns the per-document stages in processing order.
func Stages() []JobKind {
	return core.Stages()
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// LogReporter returns a reporter writing to the default slog logger.
func LogReporter() Reporter {
	return report.NewLog(nil)
}

// Client option functions

// WithBaseURL points the client at another service root.
func WithBaseURL(u string) ClientOption {
	return transkribus.WithBaseURL(u)
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) ClientOption {
	return transkribus.WithHTTPClient(hc)
}

// Orchestrator option functions

// PollInterval sets the delay between status queries.
func PollInterval(d time.Duration) OrchestratorOption {
	return orchestrator.WithPollInterval(d)
}

// Timeout sets the wait limit of every stage.
func Timeout(d time.Duration) OrchestratorOption {
	return orchestrator.WithTimeout(d)
}

// StageTimeout overrides the wait limit of one stage.
func StageTimeout(kind JobKind, d time.Duration) OrchestratorOption {
	return orchestrator.WithStageTimeout(kind, d)
}

// Driver option functions

// WithConcurrency sets how many documents are processed at once.
func WithConcurrency(n int) Option {
	return pipeline.WithConcurrency(n)
}

// WithDownloadDir enables export downloads below dir.
func WithDownloadDir(dir string) Option {
	return pipeline.WithDownloadDir(dir)
}

// WithStore enables durable run bookkeeping.
func WithStore(s RunStore) Option {
	return pipeline.WithStore(s)
}

// WithReporter sets the reporting sink.
func WithReporter(r Reporter) Option {
	return pipeline.WithReporter(r)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return pipeline.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return pipeline.Daily(hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return pipeline.Cron(expr)
}
