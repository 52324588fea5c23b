package transkribus

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

type collectionJSON struct {
	ColID   json.Number `json:"colId"`
	ColName string      `json:"colName"`
}

type documentJSON struct {
	DocID     json.Number `json:"docId"`
	Title     string      `json:"title"`
	NrOfPages int         `json:"nrOfPages"`
	NrOfNew   *int        `json:"nrOfNew"`
}

type fullDocJSON struct {
	PageList struct {
		Pages []struct {
			PageID json.Number `json:"pageId"`
		} `json:"pages"`
	} `json:"pageList"`
}

// ListCollections returns every collection visible to the session.
func (c *Client) ListCollections(ctx context.Context) ([]core.Collection, error) {
	body, err := c.request(ctx, requestSpec{op: "list collections", method: http.MethodGet, path: "/collections/list"})
	if err != nil {
		return nil, err
	}

	var raw []collectionJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &core.ParseError{What: "collection list", Raw: string(body), Err: err}
	}
	out := make([]core.Collection, 0, len(raw))
	for _, col := range raw {
		out = append(out, core.Collection{ID: col.ColID.String(), Name: col.ColName})
	}
	return out, nil
}

// ListDocuments returns the documents of a collection. The new-page counter
// of the service becomes DocumentRef.NewPages; an absent counter is zero.
func (c *Client) ListDocuments(ctx context.Context, collectionID string) ([]core.DocumentRef, error) {
	if err := security.ValidateID(collectionID); err != nil {
		return nil, err
	}
	body, err := c.request(ctx, requestSpec{
		op:     "list documents",
		method: http.MethodGet,
		path:   "/collections/" + collectionID + "/list",
	})
	if err != nil {
		return nil, err
	}

	var raw []documentJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &core.ParseError{What: "document list", Raw: string(body), Err: err}
	}
	out := make([]core.DocumentRef, 0, len(raw))
	for _, d := range raw {
		ref := core.DocumentRef{
			ID:           d.DocID.String(),
			CollectionID: collectionID,
			Title:        d.Title,
			Pages:        d.NrOfPages,
		}
		if d.NrOfNew != nil {
			ref.NewPages = *d.NrOfNew
		}
		out = append(out, ref)
	}
	return out, nil
}

// PageIDs returns the page ids of a document in page order.
func (c *Client) PageIDs(ctx context.Context, collectionID, documentID string) ([]string, error) {
	if err := validateIDs(collectionID, documentID); err != nil {
		return nil, err
	}
	body, err := c.request(ctx, requestSpec{
		op:     "get document",
		method: http.MethodGet,
		path:   "/collections/" + collectionID + "/" + documentID + "/fulldoc",
	})
	if err != nil {
		return nil, err
	}

	var doc fullDocJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &core.ParseError{What: "document " + documentID, Err: err}
	}
	ids := make([]string, 0, len(doc.PageList.Pages))
	for _, p := range doc.PageList.Pages {
		ids = append(ids, p.PageID.String())
	}
	return ids, nil
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if err := security.ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}
