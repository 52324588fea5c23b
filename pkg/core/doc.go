// Package core provides the fundamental types and interfaces for the editions pipeline.
//
// This package contains:
//   - job kinds, remote job states and handles for the document-analysis service
//   - PipelineRun and StageCheckpoint bookkeeping models with GORM annotations
//   - interfaces for the remote service, the reporting sink and the run store
//   - event types for pipeline monitoring
//   - error types shared by the orchestrator, discovery and driver
//
// Most users should import the root package
// github.com/BastianD2000/Automated-Workflow-for-Digital-Editions instead of
// this package directly.
package core
