package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/jo-hoe/sicoem/internal/common"
)

// DefaultTimeout bounds one request to the store.
const DefaultTimeout = 30 * time.Second

// Client talks to a document store deployment (Apps Script web app or cmd/docstore).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload posts the document as a multipart form. Any 2xx/3xx answer whose body is
// not JSON counts as accepted, since Apps Script redirects and returns HTML.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := []struct{ key, value string }{
		{"action", ActionUpload},
		{"equipmentCode", req.EquipmentCode},
		{"fileName", req.FileName},
		{"fileData", req.FileData},
		{"technician", req.Technician},
		{"date", req.Date},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	data, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var result UploadResponse
	if err := json.Unmarshal(data, &result); err != nil {
		slog.Debug("DocStore: upload answered with non-JSON body; treating as accepted", "file_name", req.FileName)
		return &UploadResponse{Success: true, Message: "Enviado"}, nil
	}
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = result.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, reason)
	}
	return &result, nil
}

// List returns the store's history for one equipment code in store order.
func (c *Client) List(ctx context.Context, equipmentCode string) ([]RemoteFile, error) {
	var result ListResponse
	if err := c.getJSON(ctx, url.Values{"action": {ActionList}, "equipmentCode": {equipmentCode}}, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, result.Error)
	}
	if result.OTMs == nil {
		return []RemoteFile{}, nil
	}
	return result.OTMs, nil
}

// GetContent fetches and decodes one document. It returns nil, nil when the store
// has no content for fileID.
func (c *Client) GetContent(ctx context.Context, fileID string) (*Document, error) {
	var result ContentResponse
	if err := c.getJSON(ctx, url.Values{"action": {ActionGetContent}, "fileId": {fileID}}, &result); err != nil {
		return nil, err
	}
	if !result.Success || result.Content == "" {
		return nil, nil
	}
	data, err := common.DecodePayload(result.Content)
	if err != nil {
		return nil, err
	}
	return &Document{FileName: result.FileName, MimeType: result.MimeType, Data: data}, nil
}

// DownloadURL asks the store for a shareable link. An empty string means none.
func (c *Client) DownloadURL(ctx context.Context, fileID string) (string, error) {
	var result DownloadResponse
	if err := c.getJSON(ctx, url.Values{"action": {ActionDownload}, "fileId": {fileID}}, &result); err != nil {
		return "", err
	}
	if result.URL != "" {
		return result.URL, nil
	}
	return result.ViewURL, nil
}

func (c *Client) getJSON(ctx context.Context, query url.Values, target any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid document store url: %w", err)
	}
	q := u.Query()
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", query.Get("action"), err)
	}
	data, err := c.do(httpReq)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", query.Get("action"), err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document store request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document store response: %w", err)
	}
	return data, nil
}
