package transkribus

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// ScanUploadDir turns every sub-directory of dir that holds images into one
// upload batch titled with the directory name. Batches and pages are sorted
// by name.
func ScanUploadDir(dir string) ([]core.UploadBatch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan upload dir: %w", err)
	}

	var batches []core.UploadBatch
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(dir, e.Name())
		files, err := os.ReadDir(folder)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", folder, err)
		}
		var images []string
		for _, f := range files {
			if f.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			images = append(images, filepath.Join(folder, f.Name()))
		}
		if len(images) == 0 {
			continue
		}
		sort.Strings(images)
		batches = append(batches, core.UploadBatch{Title: e.Name(), Files: images})
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Title < batches[j].Title })
	return batches, nil
}

type uploadRequest struct {
	MD struct {
		Title string `json:"title"`
	} `json:"md"`
	PageList struct {
		Pages []uploadPage `json:"pages"`
	} `json:"pageList"`
}

type uploadPage struct {
	FileName    string `json:"fileName"`
	PageNr      int    `json:"pageNr"`
	ImgChecksum string `json:"imgChecksum"`
}

type uploadResponse struct {
	UploadID string `xml:"uploadId"`
}

// Upload creates a document from the batch's images: the page list with MD5
// checksums is registered first, then every image is sent on its own.
// The returned handle carries the ingest job id when the service reports one.
func (c *Client) Upload(ctx context.Context, collectionID string, batch core.UploadBatch) (core.JobHandle, error) {
	fail := submissionFailure(core.KindUpload, "")
	if err := security.ValidateID(collectionID); err != nil {
		return core.JobHandle{}, fail(err)
	}
	if err := security.ValidateTitle(batch.Title); err != nil {
		return core.JobHandle{}, fail(fmt.Errorf("%w: %q", err, batch.Title))
	}
	if len(batch.Files) == 0 {
		return core.JobHandle{}, fail(fmt.Errorf("batch %q has no images", batch.Title))
	}

	var req uploadRequest
	req.MD.Title = batch.Title
	for i, path := range batch.Files {
		sum, err := fileMD5(path)
		if err != nil {
			return core.JobHandle{}, fail(err)
		}
		req.PageList.Pages = append(req.PageList.Pages, uploadPage{
			FileName:    filepath.Base(path),
			PageNr:      i + 1,
			ImgChecksum: sum,
		})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return core.JobHandle{}, fail(err)
	}

	body, err := c.request(ctx, requestSpec{
		op:          "create upload",
		method:      http.MethodPost,
		path:        "/uploads",
		query:       url.Values{"collId": {collectionID}},
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		accept:      "application/xml",
	})
	if err != nil {
		return core.JobHandle{}, fail(err)
	}
	var created uploadResponse
	if err := xml.Unmarshal(body, &created); err != nil || security.ValidateID(strings.TrimSpace(created.UploadID)) != nil {
		return core.JobHandle{}, fail(&core.ParseError{What: "upload id", Raw: string(body), Err: err})
	}
	uploadID := strings.TrimSpace(created.UploadID)

	var last []byte
	for _, path := range batch.Files {
		last, err = c.putImage(ctx, uploadID, path)
		if err != nil {
			return core.JobHandle{}, fail(fmt.Errorf("upload %s: %w", filepath.Base(path), err))
		}
	}

	h := core.JobHandle{ID: parseJobID(last), Kind: core.KindUpload}
	c.logger.Info("upload completed",
		"collection_id", collectionID,
		"title", batch.Title,
		"upload_id", uploadID,
		"job_id", h.ID,
		"pages", len(batch.Files),
	)
	return h, nil
}

// putImage streams one image as the multipart field "img".
func (c *Client) putImage(ctx context.Context, uploadID, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("img", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	body, err := c.request(ctx, requestSpec{
		op:          "upload page",
		method:      http.MethodPut,
		path:        "/uploads/" + uploadID,
		body:        pr,
		contentType: mw.FormDataContentType(),
		accept:      "application/xml",
	})
	// Unblock the writer goroutine if the request ended early.
	pr.CloseWithError(io.ErrClosedPipe)
	return body, err
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
