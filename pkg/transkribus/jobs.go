package transkribus

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// remoteKinds maps service job types onto job kinds. Types not listed
// belong to no kind and never affect a wait.
var remoteKinds = map[string]core.JobKind{
	"UploadJob":           core.KindUpload,
	"CreateDocJob":        core.KindUpload,
	"LAJob":               core.KindLayoutAnalysis,
	"LaJob":               core.KindLayoutAnalysis,
	"CITlabAdvancedLaJob": core.KindLayoutAnalysis,
	"TextRecognitionJob":  core.KindOCR,
	"OcrJob":              core.KindOCR,
	"HtrJob":              core.KindOCR,
	"DocExportJob":        core.KindExport,
	"ExportJob":           core.KindExport,
}

// KindOf maps a service job type onto a job kind.
func KindOf(remoteType string) (core.JobKind, bool) {
	k, ok := remoteKinds[remoteType]
	return k, ok
}

type jobJSON struct {
	JobID   json.Number     `json:"jobId"`
	JobType string          `json:"jobType"`
	DocID   json.Number     `json:"docId"`
	State   string          `json:"state"`
	Result  json.RawMessage `json:"result"`
}

// ListJobs returns the jobs matching filter. With filter.JobID set the
// single-job endpoint is used and the job is returned whatever its type.
func (c *Client) ListJobs(ctx context.Context, filter core.JobFilter) ([]core.RemoteJob, error) {
	if filter.JobID != "" {
		job, err := c.getJob(ctx, filter)
		if err != nil {
			return nil, err
		}
		return []core.RemoteJob{job}, nil
	}

	body, err := c.request(ctx, requestSpec{op: "list jobs", method: http.MethodGet, path: "/jobs/list"})
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &core.ParseError{What: "job list", Raw: string(body), Err: err}
	}

	var out []core.RemoteJob
	for _, raw := range raws {
		var j jobJSON
		if err := json.Unmarshal(raw, &j); err != nil {
			return nil, &core.ParseError{What: "job", Raw: string(raw), Err: err}
		}
		kind, ok := KindOf(j.JobType)
		if !ok {
			continue
		}
		if filter.Kind != "" && kind != filter.Kind {
			continue
		}
		docID := normalizeDocID(j.DocID)
		if filter.DocumentID != "" && docID != filter.DocumentID {
			continue
		}
		job, err := toRemoteJob(j, kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (c *Client) getJob(ctx context.Context, filter core.JobFilter) (core.RemoteJob, error) {
	if err := security.ValidateID(filter.JobID); err != nil {
		return core.RemoteJob{}, err
	}
	body, err := c.request(ctx, requestSpec{op: "get job", method: http.MethodGet, path: "/jobs/" + filter.JobID})
	if err != nil {
		return core.RemoteJob{}, err
	}

	var j jobJSON
	if err := json.Unmarshal(body, &j); err != nil {
		return core.RemoteJob{}, &core.ParseError{What: "job " + filter.JobID, Raw: string(body), Err: err}
	}
	kind, ok := KindOf(j.JobType)
	if !ok {
		kind = filter.Kind
	}
	return toRemoteJob(j, kind, body)
}

func toRemoteJob(j jobJSON, kind core.JobKind, raw []byte) (core.RemoteJob, error) {
	state, err := core.ParseJobState(j.State)
	if err != nil {
		var pe *core.ParseError
		if errors.As(err, &pe) {
			pe.What = "state of job " + j.JobID.String()
		}
		return core.RemoteJob{}, err
	}
	job := core.RemoteJob{
		ID:         j.JobID.String(),
		Kind:       kind,
		RemoteType: j.JobType,
		DocumentID: normalizeDocID(j.DocID),
		State:      state,
		Raw:        json.RawMessage(raw),
	}
	if state == core.StateFinished {
		job.Result = resultString(j.Result)
	}
	return job, nil
}

// normalizeDocID maps the service's "no document" markers to "".
func normalizeDocID(n json.Number) string {
	s := n.String()
	if s == "" || s == "0" || strings.HasPrefix(s, "-") {
		return ""
	}
	return s
}

func resultString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// parseJobID extracts a job id from a submission response. The service
// answers with a bare number, a JSON number or object, a JSON array of ids
// or an XML document containing jobId elements depending on the endpoint.
// An empty id means none was returned.
func parseJobID(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	if security.ValidateID(text) == nil {
		return text
	}

	var v any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&v); err == nil {
		return jobIDFromJSON(v)
	}
	return jobIDFromXML(body)
}

func jobIDFromJSON(v any) string {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case string:
		if security.ValidateID(t) == nil {
			return t
		}
	case []any:
		if len(t) > 0 {
			return jobIDFromJSON(t[0])
		}
	case map[string]any:
		if id, ok := t["jobId"]; ok {
			return jobIDFromJSON(id)
		}
	}
	return ""
}

func jobIDFromXML(body []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "jobId" {
			continue
		}
		var id string
		if err := dec.DecodeElement(&id, &se); err != nil {
			return ""
		}
		id = strings.TrimSpace(id)
		if security.ValidateID(id) == nil {
			return id
		}
	}
}
