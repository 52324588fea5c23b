// Package pipeline composes discovery and the stage orchestrator into full
// runs over collections: upload, layout analysis, OCR, export, download.
//
// A Driver processes documents on a bounded worker pool. Each document gets
// its own PipelineRun, persisted through an optional core.RunStore so an
// interrupted run resumes after its last successful stage. The Driver is the
// only component that talks to the reporting sink.
//
// Progress is published as core.Event values on channels returned by
// Driver.Events and through OnStageFinished / OnRunFinished hooks.
package pipeline
