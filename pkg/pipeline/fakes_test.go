package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/orchestrator"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// onSleep runs before each sleep returns, outside the lock.
	onSleep func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

type fakeJob struct {
	job   core.RemoteJob
	polls int
	fail  bool
}

// fakeRemote simulates the document-analysis service. Every job finishes
// (or fails) after pollsToFinish status queries.
type fakeRemote struct {
	mu            sync.Mutex
	cols          []core.Collection
	docs          map[string][]core.DocumentRef
	jobs          []*fakeJob
	nextID        int
	pollsToFinish int

	rejectSubmit map[string]core.JobKind // document -> stage the service refuses
	failJob      map[string]core.JobKind // document -> stage whose job fails
	rejectUpload map[string]bool         // title -> upload refused

	log        []string // "submit:<kind>:<doc>"
	violations []string
	downloads  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:          map[string][]core.DocumentRef{},
		pollsToFinish: 2,
		rejectSubmit:  map[string]core.JobKind{},
		failJob:       map[string]core.JobKind{},
		rejectUpload:  map[string]bool{},
	}
}

func (f *fakeRemote) addDoc(col, id, title string, newPages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[col] = append(f.docs[col], core.DocumentRef{ID: id, CollectionID: col, Title: title, Pages: 2, NewPages: newPages})
}

// addJob must be called with f.mu held.
func (f *fakeRemote) addJob(kind core.JobKind, doc string) core.JobHandle {
	f.nextID++
	id := strconv.Itoa(f.nextID)
	fj := &fakeJob{job: core.RemoteJob{ID: id, Kind: kind, DocumentID: doc, State: core.StatePending}}
	fj.fail = doc != "" && f.failJob[doc] == kind
	f.jobs = append(f.jobs, fj)
	return core.JobHandle{ID: id, Kind: kind, DocumentID: doc}
}

// advance must be called with f.mu held.
func (f *fakeRemote) advance(fj *fakeJob) core.RemoteJob {
	if fj.job.State.Terminal() {
		return fj.job
	}
	fj.polls++
	switch {
	case fj.polls < f.pollsToFinish:
		fj.job.State = core.StateRunning
	case fj.fail:
		fj.job.State = core.StateFailed
	default:
		fj.job.State = core.StateFinished
		if fj.job.Kind == core.KindExport {
			fj.job.Result = "https://files.example/export/" + fj.job.DocumentID + ".zip"
		}
	}
	return fj.job
}

func (f *fakeRemote) ListJobs(_ context.Context, filter core.JobFilter) ([]core.RemoteJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.RemoteJob
	for _, fj := range f.jobs {
		if filter.JobID != "" {
			if fj.job.ID == filter.JobID {
				out = append(out, f.advance(fj))
			}
			continue
		}
		if fj.job.Matches(filter.Kind, filter.DocumentID) {
			out = append(out, f.advance(fj))
		}
	}
	if filter.JobID != "" && len(out) == 0 {
		return nil, &core.HTTPError{Op: "get job", StatusCode: 404}
	}
	return out, nil
}

func (f *fakeRemote) ListDocuments(_ context.Context, col string) ([]core.DocumentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[col]; !ok {
		return nil, fmt.Errorf("collection %s: %w", col, core.ErrNotFound)
	}
	return append([]core.DocumentRef(nil), f.docs[col]...), nil
}

func (f *fakeRemote) ListCollections(context.Context) ([]core.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cols, nil
}

func (f *fakeRemote) PageIDs(context.Context, string, string) ([]string, error) {
	return []string{"p1", "p2"}, nil
}

// finished reports whether kind already finished for doc. Must hold f.mu.
func (f *fakeRemote) finished(kind core.JobKind, doc string) bool {
	for _, fj := range f.jobs {
		if fj.job.Kind == kind && fj.job.DocumentID == doc && fj.job.State == core.StateFinished {
			return true
		}
	}
	return false
}

func (f *fakeRemote) start(kind core.JobKind, doc string, requires core.JobKind) (core.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "submit:"+string(kind)+":"+doc)
	if requires != "" && !f.finished(requires, doc) {
		f.violations = append(f.violations, fmt.Sprintf("%s before %s finished for %s", kind, requires, doc))
	}
	if f.rejectSubmit[doc] == kind {
		return core.JobHandle{}, &core.SubmissionError{Kind: kind, DocumentID: doc, Err: errors.New("503 service unavailable")}
	}
	return f.addJob(kind, doc), nil
}

func (f *fakeRemote) StartLayoutAnalysis(_ context.Context, _, doc string, pages []string) (core.JobHandle, error) {
	return f.start(core.KindLayoutAnalysis, doc, "")
}

func (f *fakeRemote) StartOCR(_ context.Context, _, doc string, _ []string) (core.JobHandle, error) {
	return f.start(core.KindOCR, doc, core.KindLayoutAnalysis)
}

func (f *fakeRemote) StartExport(_ context.Context, _, doc string) (core.JobHandle, error) {
	return f.start(core.KindExport, doc, core.KindOCR)
}

func (f *fakeRemote) Upload(_ context.Context, col string, batch core.UploadBatch) (core.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectUpload[batch.Title] {
		return core.JobHandle{}, errors.New("upload refused")
	}
	f.nextID++
	docID := "u" + strconv.Itoa(f.nextID)
	f.docs[col] = append(f.docs[col], core.DocumentRef{ID: docID, CollectionID: col, Title: batch.Title, NewPages: len(batch.Files)})
	return f.addJob(core.KindUpload, ""), nil
}

func (f *fakeRemote) Download(_ context.Context, ref, dest string) (string, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, ref)
	f.mu.Unlock()
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	return dest, os.WriteFile(dest+"/page.xml", []byte("<PcGts/>"), 0o644)
}

func (f *fakeRemote) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func newTestDriver(t *testing.T, remote core.Remote, opts ...Option) *Driver {
	t.Helper()
	clk := newFakeClock()
	orch, err := orchestrator.New(remote,
		orchestrator.WithClock(clk),
		orchestrator.WithPollInterval(time.Second),
		orchestrator.WithTimeout(time.Minute))
	require.NoError(t, err)
	opts = append([]Option{WithClock(clk), DisableRetry()}, opts...)
	d, err := New(remote, orch, opts...)
	require.NoError(t, err)
	return d
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
