package editions_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	editions "github.com/BastianD2000/Automated-Workflow-for-Digital-Editions"
)

// fakeService mimics the Transkribus endpoints the pipeline uses. Every job
// reports RUNNING on its first status query and its final state afterwards.
type fakeService struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	nextJob   int
	jobs      map[string]*serviceJob
	failTypes map[string]bool // job type that ends FAILED
	docs      []map[string]any
}

type serviceJob struct {
	Type  string
	DocID string
	polls int
}

func newFakeService(t *testing.T) *fakeService {
	s := &fakeService{
		t:         t,
		nextJob:   100,
		jobs:      map[string]*serviceJob{},
		failTypes: map[string]bool{},
		docs: []map[string]any{
			{"docId": 10, "title": "Letter 1", "nrOfPages": 2, "nrOfNew": 2},
			{"docId": 11, "title": "Letter 2", "nrOfPages": 1, "nrOfNew": 0},
			{"docId": 12, "title": "Letter 3", "nrOfPages": 1, "nrOfNew": 1},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<trpUserLogin><sessionId>SESSION</sessionId></trpUserLogin>`)
	})
	mux.HandleFunc("GET /collections/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"colId": 1, "colName": "Letters"}]`)
	})
	mux.HandleFunc("GET /collections/1/list", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(s.docs)
	})
	mux.HandleFunc("GET /collections/1/{doc}/fulldoc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"pageList": {"pages": [{"pageId": %s1}, {"pageId": %s2}]}}`, r.PathValue("doc"), r.PathValue("doc"))
	})
	mux.HandleFunc("POST /LA/analyze", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		doc := "10"
		for _, id := range []string{"10", "12"} {
			if bytes.Contains(body, []byte("<docId>"+id+"</docId>")) {
				doc = id
			}
		}
		_, _ = io.WriteString(w, s.addJob("CITlabAdvancedLaJob", doc))
	})
	mux.HandleFunc("POST /recognition/ocr", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, s.addJob("OcrJob", r.URL.Query().Get("id")))
	})
	mux.HandleFunc("POST /collections/1/{doc}/export", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, s.addJob("DocExportJob", r.PathValue("doc")))
	})
	mux.HandleFunc("GET /jobs/list", s.listJobs)
	mux.HandleFunc("GET /jobs/{id}", s.getJob)
	mux.HandleFunc("GET /files/{doc}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(exportArchive(t, r.PathValue("doc")))
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeService) addJob(jobType, doc string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJob++
	id := strconv.Itoa(s.nextJob)
	s.jobs[id] = &serviceJob{Type: jobType, DocID: doc}
	return id
}

func (s *fakeService) getJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	job, ok := s.jobs[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	job.polls++
	_ = json.NewEncoder(w).Encode(s.view(id, job))
}

// listJobs reports every job without counting it as a status query.
func (s *fakeService) listJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.jobs))
	for id, job := range s.jobs {
		out = append(out, s.view(id, job))
	}
	_ = json.NewEncoder(w).Encode(out)
}

// view must be called with s.mu held.
func (s *fakeService) view(id string, job *serviceJob) map[string]any {
	state := "CREATED"
	switch {
	case job.polls == 1:
		state = "RUNNING"
	case job.polls > 1 && s.failTypes[job.Type]:
		state = "FAILED"
	case job.polls > 1:
		state = "FINISHED"
	}
	resp := map[string]any{"jobId": json.Number(id), "jobType": job.Type, "docId": json.Number(job.DocID), "state": state}
	if state == "FINISHED" && job.Type == "DocExportJob" {
		resp["result"] = s.srv.URL + "/files/" + job.DocID
	}
	return resp
}

func exportArchive(t *testing.T, doc string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(doc + "/page/0001.xml")
	require.NoError(t, err)
	_, err = io.WriteString(f, "<PcGts/>")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func setupPipeline(t *testing.T, s *fakeService, opts ...editions.Option) (*editions.Driver, *editions.GormStore) {
	t.Helper()
	ctx := context.Background()

	client := editions.NewClient(editions.WithBaseURL(s.srv.URL))
	require.NoError(t, client.Login(ctx, "ada@example.org", "s3cret"))

	store, err := editions.OpenStore(editions.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })

	orch, err := editions.NewOrchestrator(client,
		editions.PollInterval(10*time.Millisecond),
		editions.Timeout(5*time.Second))
	require.NoError(t, err)

	opts = append([]editions.Option{editions.WithStore(store), editions.WithReporter(editions.LogReporter())}, opts...)
	d, err := editions.NewDriver(client, orch, opts...)
	require.NoError(t, err)
	return d, store
}

// ──────────────────────────────────────────────────────────────────────────────
// End to end
// ──────────────────────────────────────────────────────────────────────────────

func TestIntegration_ProcessesNewDocumentsAndDownloadsExports(t *testing.T) {
	s := newFakeService(t)
	dir := t.TempDir()
	d, store := setupPipeline(t, s, editions.WithDownloadDir(dir), editions.WithConcurrency(2))
	ctx := context.Background()

	var mu sync.Mutex
	var finished []editions.JobKind
	d.OnStageFinished(func(_ context.Context, _ *editions.PipelineRun, o editions.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, o.Kind)
	})

	sum, err := d.Run(ctx, editions.Plan{Name: "nightly", CollectionIDs: []string{"1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Len(t, finished, 6)

	for _, doc := range []string{"10", "12"} {
		page := filepath.Join(dir, "1", doc, doc, "page", "0001.xml")
		_, err := os.Stat(page)
		assert.NoError(t, err, page)
	}

	runs, err := store.ListRuns(ctx, editions.RunQuery{CollectionID: "1"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, editions.RunSuccess, run.Status)
		require.Len(t, run.Stages, 3)
		assert.Equal(t, editions.KindExport, run.Stages[2].Kind)
		assert.NotEmpty(t, run.Stages[2].Result)
	}
}

func TestIntegration_FailedOCRStopsDocument(t *testing.T) {
	s := newFakeService(t)
	s.failTypes["OcrJob"] = true
	d, store := setupPipeline(t, s)
	ctx := context.Background()

	sum, err := d.Run(ctx, editions.Plan{CollectionIDs: []string{"1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	for _, r := range sum.Results {
		assert.Equal(t, editions.KindOCR, r.Outcome.Kind)
		assert.Equal(t, editions.OutcomeFailed, r.Outcome.Status)
	}

	s.mu.Lock()
	for _, job := range s.jobs {
		assert.NotEqual(t, "DocExportJob", job.Type, "export must not start after a failed OCR")
	}
	s.mu.Unlock()

	runs, err := store.ListRuns(ctx, editions.RunQuery{Status: editions.RunFailed})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, editions.KindOCR, runs[0].FailedStage)
}

func TestIntegration_EventsFollowStageOrder(t *testing.T) {
	s := newFakeService(t)
	s.docs = s.docs[:1]
	d, _ := setupPipeline(t, s)

	events := d.Events()
	defer d.Unsubscribe(events)

	_, err := d.Run(context.Background(), editions.Plan{CollectionIDs: []string{"1"}})
	require.NoError(t, err)

	var kinds []editions.JobKind
	var plan *editions.PlanFinished
	for len(events) > 0 {
		switch e := (<-events).(type) {
		case *editions.StageSubmitted:
			kinds = append(kinds, e.Handle.Kind)
		case *editions.PlanFinished:
			plan = e
		}
	}
	assert.Equal(t, editions.Stages(), kinds)
	require.NotNil(t, plan)
	assert.Equal(t, 1, plan.Succeeded)
}

func TestIntegration_NothingEligible(t *testing.T) {
	s := newFakeService(t)
	s.docs = s.docs[1:2]
	d, _ := setupPipeline(t, s)

	sum, err := d.Run(context.Background(), editions.Plan{})
	require.NoError(t, err)
	assert.Empty(t, sum.Results)
	assert.Empty(t, s.jobs)
}
