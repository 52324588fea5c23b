package exist

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// existServer serves source files under /src/ and a writable /db/ tree.
type existServer struct {
	mu     sync.Mutex
	source map[string]string
	stored map[string]string
	puts   int
}

func (s *existServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/src/"):
			body, ok := s.source[strings.TrimPrefix(r.URL.Path, "/src/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = io.WriteString(w, body)
		case strings.HasPrefix(r.URL.Path, "/db/"):
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "admin", user)
			assert.Equal(t, "secret", pass)
			key := strings.TrimPrefix(r.URL.Path, "/db/")
			switch r.Method {
			case http.MethodHead:
				if _, ok := s.stored[key]; !ok {
					w.WriteHeader(http.StatusNotFound)
				}
			case http.MethodPut:
				assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
				b, _ := io.ReadAll(r.Body)
				s.stored[key] = string(b)
				s.puts++
				w.WriteHeader(http.StatusCreated)
			}
		default:
			http.NotFound(w, r)
		}
	})
}

type fakeValidator struct {
	ok    bool
	diags []Diagnostic
	err   error
}

func (f fakeValidator) Validate(context.Context, string, string) (bool, []Diagnostic, error) {
	return f.ok, f.diags, f.err
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingReporter) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recordingReporter) ReportStart(_ context.Context, rc core.ReportContext) (core.Ticket, error) {
	r.add("start:" + rc.Title + "|" + rc.Description)
	return core.Ticket{ID: "1"}, nil
}

func (r *recordingReporter) ReportFailure(_ context.Context, _ core.Ticket, reason string) error {
	r.add("fail:" + reason)
	return nil
}

func (r *recordingReporter) ReportSuccess(_ context.Context, _ core.Ticket, message string) error {
	r.add("ok:" + message)
	return nil
}

func newTestPublisher(t *testing.T, s *existServer, v Validator) (*Publisher, *recordingReporter) {
	t.Helper()
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	rep := &recordingReporter{}
	p, err := NewPublisher(Config{
		FetchServer: srv.URL + "/src/",
		Server:      srv.URL + "/db/",
		User:        "admin",
		Password:    "secret",
		Schema:      "tei.rng",
	}, WithValidator(v), WithReporter(rep), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	return p, rep
}

// ──────────────────────────────────────────────────────────────────────────────
// Publisher
// ──────────────────────────────────────────────────────────────────────────────

func TestPublish_CreatesThenUpdates(t *testing.T) {
	s := &existServer{source: map[string]string{"ed01": "<TEI/>"}, stored: map[string]string{}}
	p, rep := newTestPublisher(t, s, fakeValidator{ok: true})

	res, err := p.Publish(context.Background(), "ed01", "edoc")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, "ed01.xml", res.File)
	assert.Equal(t, "<TEI/>", s.stored["edoc/texts/ed01.xml"])

	res, err = p.Publish(context.Background(), "ed01", "/edoc/")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, 2, s.puts)

	require.Len(t, rep.calls, 4)
	assert.Contains(t, rep.calls[0], "start:Processing file: ed01.xml")
	assert.Equal(t, "ok:created: Uploaded file ed01.xml successfully.", rep.calls[1])
	assert.Equal(t, "ok:updated: Uploaded file ed01.xml successfully.", rep.calls[3])
}

func TestPublish_FetchFailure(t *testing.T) {
	s := &existServer{source: map[string]string{}, stored: map[string]string{}}
	p, rep := newTestPublisher(t, s, fakeValidator{ok: true})

	res, err := p.Publish(context.Background(), "missing", "edoc")
	var he *core.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.StatusCode)
	assert.Equal(t, StatusFetchFailed, res.Status)
	require.Len(t, rep.calls, 1)
	assert.Contains(t, rep.calls[0], "missing not found on")
	assert.Zero(t, s.puts)
}

func TestPublish_InvalidFileIsNotUploaded(t *testing.T) {
	s := &existServer{source: map[string]string{"ed02": "<bad/>"}, stored: map[string]string{}}
	diags := []Diagnostic{{Line: 3, Message: "Expecting element teiHeader"}}
	p, rep := newTestPublisher(t, s, fakeValidator{diags: diags})

	res, err := p.Publish(context.Background(), "ed02", "edoc")
	assert.Error(t, err)
	assert.Equal(t, StatusValidationFailed, res.Status)
	assert.Equal(t, diags, res.Diagnostics)
	require.Len(t, rep.calls, 1)
	assert.Contains(t, rep.calls[0], "- [ ] Line 3: Expecting element teiHeader")
	assert.Zero(t, s.puts)
}

func TestPublish_ValidatorError(t *testing.T) {
	s := &existServer{source: map[string]string{"ed03": "<x/>"}, stored: map[string]string{}}
	p, _ := newTestPublisher(t, s, fakeValidator{err: errors.New("xmllint: not found")})

	res, err := p.Publish(context.Background(), "ed03", "edoc")
	assert.Error(t, err)
	assert.Equal(t, StatusValidationFailed, res.Status)
}

func TestPublish_RejectsPathLikeIDs(t *testing.T) {
	s := &existServer{source: map[string]string{}, stored: map[string]string{}}
	p, _ := newTestPublisher(t, s, fakeValidator{ok: true})

	res, err := p.Publish(context.Background(), "../etc/passwd", "edoc")
	assert.Error(t, err)
	assert.Equal(t, StatusFetchFailed, res.Status)
}

func TestNewPublisher_RequiresServers(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// XMLLint
// ──────────────────────────────────────────────────────────────────────────────

type fakeRunner struct {
	stderr string
	err    error
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = append([]string{name}, args...)
	return nil, []byte(f.stderr), f.err
}

func TestXMLLint_Valid(t *testing.T) {
	r := &fakeRunner{stderr: "a.xml validates\n"}
	x := &XMLLint{Runner: r}

	ok, diags, err := x.Validate(context.Background(), "a.xml", "tei.rng")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, diags)
	assert.Equal(t, []string{"xmllint", "--noout", "--relaxng", "tei.rng", "a.xml"}, r.args)
}

func TestXMLLint_Invalid(t *testing.T) {
	r := &fakeRunner{
		stderr: "/tmp/a.xml:12: element p: Relax-NG validity error : Element p has extra content: hi\n" +
			"/tmp/a.xml:40: element div: Relax-NG validity error : Expecting element head\n" +
			"/tmp/a.xml fails to validate\n",
		err: errors.New("exit status 3"),
	}
	ok, diags, err := (&XMLLint{Runner: r}).Validate(context.Background(), "/tmp/a.xml", "tei.rng")

	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, diags, 2)
	assert.Equal(t, 12, diags[0].Line)
	assert.Equal(t, "element div: Relax-NG validity error : Expecting element head", diags[1].Message)
	assert.Equal(t, "- [ ] Line 12: element p: Relax-NG validity error : Element p has extra content: hi\n"+
		"- [ ] Line 40: element div: Relax-NG validity error : Expecting element head", TaskList(diags))
}

func TestXMLLint_RunFailure(t *testing.T) {
	r := &fakeRunner{err: errors.New(`exec: "xmllint": executable file not found in $PATH`)}
	_, _, err := (&XMLLint{Runner: r}).Validate(context.Background(), "a.xml", "tei.rng")
	assert.Error(t, err)
}

func TestXMLLint_RequiresSchema(t *testing.T) {
	_, _, err := NewXMLLint().Validate(context.Background(), "a.xml", "")
	assert.Error(t, err)
}
