package transkribus

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// ArchiveName is the file the export archive is stored under in destDir.
const ArchiveName = "export.zip"

// Download fetches a finished export from resultRef into destDir and
// unpacks it there. It returns destDir.
func (c *Client) Download(ctx context.Context, resultRef, destDir string) (string, error) {
	u, err := url.Parse(resultRef)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return "", &core.ParseError{What: "download url", Raw: resultRef, Err: err}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if c.sameHost(u) {
		if session := c.SessionID(); session != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &core.HTTPError{Op: "download export", StatusCode: resp.StatusCode, Body: security.SanitizeErrorMessage(string(body))}
	}

	archive := filepath.Join(destDir, ArchiveName)
	tmp, err := os.CreateTemp(destDir, ".export-*.zip")
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	n, copyErr := io.Copy(tmp, io.LimitReader(resp.Body, security.MaxArchiveSize+1))
	closeErr := tmp.Close()
	if copyErr == nil && n > security.MaxArchiveSize {
		copyErr = core.ErrArchiveTooBig
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download: %w", copyErr)
	}
	if err := os.Rename(tmp.Name(), archive); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download: %w", err)
	}

	files, err := Unzip(archive, destDir)
	if err != nil {
		return "", err
	}
	c.logger.Info("export downloaded", "dir", destDir, "bytes", n, "files", files)
	return destDir, nil
}

func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	return err == nil && strings.EqualFold(base.Host, u.Host)
}

// Unzip extracts archive below dir and returns the number of files written.
// Entries escaping dir and archives over the size limits are rejected.
func Unzip(archive, dir string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return 0, core.ErrUnsafePath
	}
	if err != nil {
		return 0, &core.ParseError{What: "export archive", Err: err}
	}
	defer zr.Close()

	if len(zr.File) > security.MaxArchiveEntries {
		return 0, core.ErrArchiveTooBig
	}

	var total int64
	files := 0
	for _, f := range zr.File {
		target, err := security.SafeJoin(dir, f.Name)
		if err != nil {
			return files, fmt.Errorf("unzip %q: %w", f.Name, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}
		n, err := extractFile(f, target, security.MaxArchiveSize-total)
		total += n
		if err != nil {
			return files, fmt.Errorf("unzip %q: %w", f.Name, err)
		}
		files++
	}
	return files, nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > budget {
		err = core.ErrArchiveTooBig
	}
	return n, err
}
