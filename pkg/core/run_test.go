package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun() *PipelineRun {
	return NewPipelineRun(DocumentRef{ID: "7", CollectionID: "1", Title: "Brief 7", NewPages: 3})
}

func success(kind JobKind, id string) Outcome {
	return Outcome{Kind: kind, Status: OutcomeSuccess, Job: JobHandle{ID: id, Kind: kind, DocumentID: "7"}}
}

func TestPipelineRun_SingleLiveHandle(t *testing.T) {
	run := newRun()

	require.NoError(t, run.Begin(JobHandle{ID: "la-1", Kind: KindLayoutAnalysis, DocumentID: "7"}))
	err := run.Begin(JobHandle{ID: "la-2", Kind: KindLayoutAnalysis, DocumentID: "7"})
	assert.ErrorIs(t, err, ErrStageInFlight)

	run.Complete(success(KindLayoutAnalysis, "la-1"))
	assert.Empty(t, run.CurrentJobID)
	assert.NoError(t, run.Begin(JobHandle{ID: "ocr-1", Kind: KindOCR, DocumentID: "7"}))
}

func TestPipelineRun_StagesInOrder(t *testing.T) {
	run := newRun()

	assert.ErrorIs(t, run.Ready(KindOCR), ErrStageOutOfOrder)
	assert.ErrorIs(t, run.Ready(KindExport), ErrStageOutOfOrder)
	assert.NoError(t, run.Ready(KindLayoutAnalysis))

	run.Complete(Outcome{Kind: KindLayoutAnalysis, Status: OutcomeFailed, Err: errors.New("boom")})
	assert.ErrorIs(t, run.Ready(KindOCR), ErrStageOutOfOrder, "failed stage does not unlock the next")

	run.Complete(success(KindLayoutAnalysis, "la-2"))
	assert.NoError(t, run.Ready(KindOCR))
	assert.Equal(t, []JobKind{KindLayoutAnalysis}, run.Completed())
}

func TestPipelineRun_FinalizeFailure(t *testing.T) {
	run := newRun()
	o := Outcome{Kind: KindOCR, Status: OutcomeTimedOut, Err: &TimeoutError{What: "ocr", Missing: []string{"99"}}}

	run.Finalize(o)

	assert.Equal(t, RunTimedOut, run.Status)
	assert.Equal(t, KindOCR, run.FailedStage)
	assert.Contains(t, run.Reason, "99")
	require.NotNil(t, run.FinishedAt)
	assert.ErrorIs(t, run.Ready(KindLayoutAnalysis), ErrRunFinished)
}

func TestPipelineRun_CancelledRunStaysResumable(t *testing.T) {
	run := newRun()
	run.Complete(success(KindLayoutAnalysis, "la-1"))
	require.NoError(t, run.Begin(JobHandle{ID: "ocr-1", Kind: KindOCR, DocumentID: "7"}))

	run.Finalize(Outcome{Kind: KindOCR, Status: OutcomeCancelled, Err: ErrCancelled})

	assert.Equal(t, RunRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, "ocr-1", run.CurrentJobID)
	assert.Equal(t, KindOCR, run.CurrentKind)
	assert.NotEmpty(t, run.Reason)

	run.Complete(success(KindOCR, "ocr-1"))
	run.Complete(success(KindExport, "ex-1"))
	run.Finalize(success(KindExport, "ex-1"))
	assert.Equal(t, RunSuccess, run.Status)
	assert.Empty(t, run.Reason)
}

func TestPipelineRun_CompleteRecordsCheckpoint(t *testing.T) {
	run := newRun()
	cp := run.Complete(Outcome{Kind: KindLayoutAnalysis, Status: OutcomeFailed, Job: JobHandle{ID: "5"}, Polls: 3,
		Err: &JobFailedError{Job: RemoteJob{ID: "5", Kind: KindLayoutAnalysis}}})

	assert.Equal(t, run.ID, cp.RunID)
	assert.Equal(t, "5", cp.JobID)
	assert.Equal(t, 3, cp.Polls)
	assert.Contains(t, cp.Error, "failed")
	assert.Len(t, run.Stages, 1)
}
