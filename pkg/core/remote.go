package core

import "context"

// JobLister queries the remote job list. With filter.JobID set only that
// job is returned.
type JobLister interface {
	ListJobs(ctx context.Context, filter JobFilter) ([]RemoteJob, error)
}

// DocumentLister lists the documents of a collection.
type DocumentLister interface {
	ListDocuments(ctx context.Context, collectionID string) ([]DocumentRef, error)
}

// CollectionLister lists the collections visible to the session.
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]Collection, error)
}

// StageSubmitter starts the per-document processing jobs.
type StageSubmitter interface {
	PageIDs(ctx context.Context, collectionID, documentID string) ([]string, error)
	StartLayoutAnalysis(ctx context.Context, collectionID, documentID string, pageIDs []string) (JobHandle, error)
	StartOCR(ctx context.Context, collectionID, documentID string, pageIDs []string) (JobHandle, error)
	StartExport(ctx context.Context, collectionID, documentID string) (JobHandle, error)
}

// Uploader creates a remote document from local images.
type Uploader interface {
	Upload(ctx context.Context, collectionID string, batch UploadBatch) (JobHandle, error)
}

// Downloader fetches a finished export and unpacks it below destDir.
type Downloader interface {
	Download(ctx context.Context, resultRef, destDir string) (string, error)
}

// Remote is the full surface of the document-analysis service.
type Remote interface {
	JobLister
	DocumentLister
	CollectionLister
	StageSubmitter
	Uploader
	Downloader
}

// ReportContext describes what a report is about.
type ReportContext struct {
	Title        string
	Description  string
	CollectionID string
	DocumentID   string
	Labels       []string
}

// Ticket identifies a report created by ReportStart.
type Ticket struct {
	ID  string
	URL string
}

// Reporter is the reporting sink. Only the pipeline driver and the publish
// workflow call it.
type Reporter interface {
	ReportStart(ctx context.Context, rc ReportContext) (Ticket, error)
	ReportFailure(ctx context.Context, t Ticket, reason string) error
	ReportSuccess(ctx context.Context, t Ticket, message string) error
}
