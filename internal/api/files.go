package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/nhle/costdesk/internal/model"
)

// Upload describes a design file to send to the backend.
type Upload struct {
	Name        string
	Description string
	Size        int64
	Body        io.Reader
}

// Download is an open file body streamed from the backend.
// The caller must close Body.
type Download struct {
	Body               io.ReadCloser
	ContentType        string
	ContentDisposition string
	ContentLength      int64
}

// ListFiles returns all design files.
func (c *Client) ListFiles(ctx context.Context) ([]model.DesignFile, error) {
	var files []model.DesignFile
	if err := c.get(ctx, "/files", &files); err != nil {
		return nil, fmt.Errorf("api.ListFiles: %w", err)
	}
	return files, nil
}

// UploadPath uploads the file at path. The size limit is checked before
// the file is opened for reading.
func (c *Client) UploadPath(ctx context.Context, path, description string) (*model.DesignFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("api.UploadPath: %w", err)
	}
	if info.IsDir() {
		return nil, Invalid("file", "%s is a directory", filepath.Base(path))
	}
	if err := model.ValidateUploadSize(info.Name(), info.Size()); err != nil {
		return nil, &ValidationError{Field: "file", Message: err.Error()}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("api.UploadPath: %w", err)
	}
	defer f.Close()

	return c.UploadFile(ctx, Upload{
		Name:        info.Name(),
		Description: description,
		Size:        info.Size(),
		Body:        f,
	})
}

// UploadFile streams up as a multipart form. Oversized files are
// rejected with a *ValidationError without contacting the backend.
func (c *Client) UploadFile(ctx context.Context, up Upload) (*model.DesignFile, error) {
	if err := model.ValidateUploadSize(up.Name, up.Size); err != nil {
		return nil, &ValidationError{Field: "file", Message: err.Error()}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, up)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/files", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("api.UploadFile: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	// Uploads can take longer than the regular request timeout.
	uploader := &http.Client{Transport: c.httpClient.Transport}
	resp, err := uploader.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("api.UploadFile: do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api.UploadFile: %w", readHTTPError(resp))
	}

	var created model.DesignFile
	if err := decodeJSON(resp.Body, &created); err != nil {
		return nil, fmt.Errorf("api.UploadFile: %w", err)
	}
	return &created, nil
}

func writeUploadForm(mw *multipart.Writer, up Upload) error {
	if up.Description != "" {
		if err := mw.WriteField("description", up.Description); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", up.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, up.Body)
	return err
}

// DownloadFile opens the binary content of a design file.
func (c *Client) DownloadFile(ctx context.Context, id string) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return nil, fmt.Errorf("api.DownloadFile: %w", err)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api.DownloadFile: do request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, fmt.Errorf("api.DownloadFile: %w", readHTTPError(resp))
	}

	return &Download{
		Body:               resp.Body,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ContentLength:      resp.ContentLength,
	}, nil
}

// DeleteFile removes a design file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/files/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("api.DeleteFile: %w", err)
	}
	return nil
}
