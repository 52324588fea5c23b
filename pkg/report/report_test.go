package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// fakeIssues is a minimal issues API for one project.
type fakeIssues struct {
	mu          sync.Mutex
	description string
	title       string
	labels      string
	state       string
}

func (f *fakeIssues) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v4/projects/42/issues", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.title, _ = body["title"].(string)
		f.description, _ = body["description"].(string)
		f.labels, _ = body["labels"].(string)
		f.state = "opened"
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1,"iid":7,"web_url":"https://gitlab.example/issues/7"}`)
	})
	mux.HandleFunc("GET /api/v4/projects/42/issues/7", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "iid": 7, "description": f.description, "state": f.state})
	})
	mux.HandleFunc("PUT /api/v4/projects/42/issues/7", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.description, _ = body["description"].(string)
		if ev, ok := body["state_event"].(string); ok && ev == "close" {
			f.state = "closed"
		}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1,"iid":7}`)
	})
	return mux
}

func newTestGitLab(t *testing.T, f *fakeIssues) *GitLab {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	g, err := NewGitLab("token", "42", WithGitLabURL(srv.URL), WithLabels("pipeline"))
	require.NoError(t, err)
	return g
}

// ──────────────────────────────────────────────────────────────────────────────
// GitLab
// ──────────────────────────────────────────────────────────────────────────────

func TestGitLab_StartFailSucceed(t *testing.T) {
	f := &fakeIssues{}
	g := newTestGitLab(t, f)
	ctx := context.Background()

	ticket, err := g.ReportStart(ctx, core.ReportContext{Title: strings.Repeat("x", 300), Description: "started"})
	require.NoError(t, err)
	assert.Equal(t, "7", ticket.ID)
	assert.Equal(t, "https://gitlab.example/issues/7", ticket.URL)
	assert.Len(t, []rune(f.title), 255)
	assert.Equal(t, "pipeline", f.labels)

	require.NoError(t, g.ReportFailure(ctx, ticket, "ocr failed"))
	assert.Equal(t, "started\n\nocr failed", f.description)
	assert.Equal(t, "opened", f.state)

	require.NoError(t, g.ReportSuccess(ctx, ticket, "done"))
	assert.Equal(t, "started\n\nocr failed\n\ndone", f.description)
	assert.Equal(t, "closed", f.state)
}

func TestGitLab_EmptyTicketIsIgnored(t *testing.T) {
	g := newTestGitLab(t, &fakeIssues{})
	assert.NoError(t, g.ReportFailure(context.Background(), core.Ticket{}, "x"))
}

func TestGitLab_BadTicket(t *testing.T) {
	g := newTestGitLab(t, &fakeIssues{})
	assert.Error(t, g.ReportSuccess(context.Background(), core.Ticket{ID: "abc"}, "x"))
}

func TestNewGitLab_RequiresProject(t *testing.T) {
	_, err := NewGitLab("token", "")
	assert.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Log, Multi, Nop
// ──────────────────────────────────────────────────────────────────────────────

func TestLog_WritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	ticket, err := s.ReportStart(context.Background(), core.ReportContext{Title: "run", CollectionID: "5"})
	require.NoError(t, err)
	require.NoError(t, s.ReportFailure(context.Background(), ticket, "boom"))

	assert.Contains(t, buf.String(), `"collection_id":"5"`)
	assert.Contains(t, buf.String(), `"reason":"boom"`)
}

type recordingReporter struct {
	ticket   core.Ticket
	startErr error
	got      []string
}

func (r *recordingReporter) ReportStart(context.Context, core.ReportContext) (core.Ticket, error) {
	return r.ticket, r.startErr
}

func (r *recordingReporter) ReportFailure(_ context.Context, t core.Ticket, reason string) error {
	r.got = append(r.got, "fail:"+t.ID+":"+reason)
	return nil
}

func (r *recordingReporter) ReportSuccess(_ context.Context, t core.Ticket, message string) error {
	r.got = append(r.got, "ok:"+t.ID+":"+message)
	return errors.New("closed already")
}

func TestMulti_PrefersTrackerTicketAndJoinsErrors(t *testing.T) {
	side := &recordingReporter{ticket: core.Ticket{ID: "log"}}
	tracker := &recordingReporter{ticket: core.Ticket{ID: "7", URL: "https://x/7"}}
	m := Multi{side, tracker}

	ticket, err := m.ReportStart(context.Background(), core.ReportContext{})
	require.NoError(t, err)
	assert.Equal(t, "7", ticket.ID)

	require.NoError(t, m.ReportFailure(context.Background(), ticket, "r"))
	assert.Equal(t, []string{"fail:7:r"}, side.got)

	err = m.ReportSuccess(context.Background(), ticket, "m")
	assert.ErrorContains(t, err, "closed already")
	assert.Equal(t, []string{"fail:7:r", "ok:7:m"}, tracker.got)
}

func TestMulti_StartErrorStillReturnsTicket(t *testing.T) {
	m := Multi{&recordingReporter{startErr: errors.New("down")}, &recordingReporter{ticket: core.Ticket{ID: "log"}}}

	ticket, err := m.ReportStart(context.Background(), core.ReportContext{})
	assert.Error(t, err)
	assert.Equal(t, "log", ticket.ID)
}

func TestNop(t *testing.T) {
	var n Nop
	ticket, err := n.ReportStart(context.Background(), core.ReportContext{})
	assert.NoError(t, err)
	assert.Empty(t, ticket.ID)
	assert.NoError(t, n.ReportSuccess(context.Background(), ticket, ""))
}
