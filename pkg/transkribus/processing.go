package transkribus

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// LayoutParams are the layout analysis switches sent with every request.
type LayoutParams struct {
	JobImpl           string
	BlockSeg          bool
	LineSeg           bool
	WordSeg           bool
	PolygonToBaseline bool
	BaselineToPolygon bool
	Credits           string
}

// DefaultLayoutParams runs the CITlab advanced layout analysis with block
// and line segmentation.
func DefaultLayoutParams() LayoutParams {
	return LayoutParams{
		JobImpl:  "CITlabAdvancedLaJob",
		BlockSeg: true,
		LineSeg:  true,
		Credits:  "AUTO",
	}
}

func (p LayoutParams) query(collectionID string) url.Values {
	return url.Values{
		"collId":              {collectionID},
		"doBlockSeg":          {strconv.FormatBool(p.BlockSeg)},
		"doLineSeg":           {strconv.FormatBool(p.LineSeg)},
		"doWordSeg":           {strconv.FormatBool(p.WordSeg)},
		"doPolygonToBaseline": {strconv.FormatBool(p.PolygonToBaseline)},
		"doBaselineToPolygon": {strconv.FormatBool(p.BaselineToPolygon)},
		"jobImpl":             {p.JobImpl},
		"credits":             {p.Credits},
	}
}

// OCREngine selects the recognition engine of StartOCR.
type OCREngine string

const (
	OCRLegacy OCREngine = "Legacy"
)

type selectionDescriptors struct {
	XMLName     xml.Name             `xml:"documentSelectionDescriptors"`
	Descriptors []selectionDescriptor `xml:"documentSelectionDescriptor"`
}

type selectionDescriptor struct {
	DocID string           `xml:"docId"`
	Pages []pageDescriptor `xml:"pageList>pages"`
}

type pageDescriptor struct {
	PageID    string `xml:"pageId"`
	RegionIDs string `xml:"regionIds"`
}

func layoutDescriptor(documentID string, pageIDs []string) ([]byte, error) {
	desc := selectionDescriptors{Descriptors: []selectionDescriptor{{DocID: documentID}}}
	for _, id := range pageIDs {
		desc.Descriptors[0].Pages = append(desc.Descriptors[0].Pages, pageDescriptor{PageID: id})
	}
	out, err := xml.Marshal(desc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// StartLayoutAnalysis submits layout analysis for the given pages.
func (c *Client) StartLayoutAnalysis(ctx context.Context, collectionID, documentID string, pageIDs []string) (core.JobHandle, error) {
	fail := submissionFailure(core.KindLayoutAnalysis, documentID)
	if err := validateIDs(collectionID, documentID); err != nil {
		return core.JobHandle{}, fail(err)
	}
	if err := validateIDs(pageIDs...); err != nil {
		return core.JobHandle{}, fail(err)
	}

	body, err := layoutDescriptor(documentID, pageIDs)
	if err != nil {
		return core.JobHandle{}, fail(err)
	}
	resp, err := c.request(ctx, requestSpec{
		op:          "start layout analysis",
		method:      http.MethodPost,
		path:        "/LA/analyze",
		query:       c.layout.query(collectionID),
		body:        bytes.NewReader(body),
		contentType: "application/xml",
	})
	if err != nil {
		return core.JobHandle{}, fail(err)
	}

	h := core.JobHandle{ID: parseJobID(resp), Kind: core.KindLayoutAnalysis, DocumentID: documentID}
	c.logger.Info("layout analysis started", "collection_id", collectionID, "document_id", documentID, "job_id", h.ID, "pages", len(pageIDs))
	return h, nil
}

// StartOCR submits text recognition for the given pages.
func (c *Client) StartOCR(ctx context.Context, collectionID, documentID string, pageIDs []string) (core.JobHandle, error) {
	fail := submissionFailure(core.KindOCR, documentID)
	if err := validateIDs(collectionID, documentID); err != nil {
		return core.JobHandle{}, fail(err)
	}
	if err := validateIDs(pageIDs...); err != nil {
		return core.JobHandle{}, fail(err)
	}

	resp, err := c.request(ctx, requestSpec{
		op:     "start ocr",
		method: http.MethodPost,
		path:   "/recognition/ocr",
		query: url.Values{
			"collId": {collectionID},
			"id":     {documentID},
			"pages":  {strings.Join(pageIDs, ",")},
			"type":   {string(c.ocrEngine)},
		},
	})
	if err != nil {
		return core.JobHandle{}, fail(err)
	}

	h := core.JobHandle{ID: parseJobID(resp), Kind: core.KindOCR, DocumentID: documentID}
	c.logger.Info("ocr started", "collection_id", collectionID, "document_id", documentID, "job_id", h.ID, "engine", c.ocrEngine)
	return h, nil
}

// StartExport requests a zip export of the document.
func (c *Client) StartExport(ctx context.Context, collectionID, documentID string) (core.JobHandle, error) {
	fail := submissionFailure(core.KindExport, documentID)
	if err := validateIDs(collectionID, documentID); err != nil {
		return core.JobHandle{}, fail(err)
	}

	payload, err := json.Marshal(map[string]string{"format": "application/zip"})
	if err != nil {
		return core.JobHandle{}, fail(err)
	}
	resp, err := c.request(ctx, requestSpec{
		op:          "start export",
		method:      http.MethodPost,
		path:        "/collections/" + collectionID + "/" + documentID + "/export",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	})
	if err != nil {
		return core.JobHandle{}, fail(err)
	}

	h := core.JobHandle{ID: parseJobID(resp), Kind: core.KindExport, DocumentID: documentID}
	if h.ID == "" {
		// The export result URL is only reachable through the job id.
		return core.JobHandle{}, fail(&core.ParseError{What: "export job id", Raw: string(resp)})
	}
	c.logger.Info("export started", "collection_id", collectionID, "document_id", documentID, "job_id", h.ID)
	return h, nil
}

func submissionFailure(kind core.JobKind, documentID string) func(error) error {
	return func(err error) error {
		return &core.SubmissionError{Kind: kind, DocumentID: documentID, Err: err}
	}
}
