package docstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/common"
	"github.com/labstack/echo/v4"
)

func newTestStore(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()

	db, err := database.NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e := echo.New()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	NewServer(db, srv.URL).SetRoutes(e)
	return NewClient(srv.URL+ExecPath, 5*time.Second), srv
}

func uploadRequest(code, date string) UploadRequest {
	return UploadRequest{
		EquipmentCode: code,
		FileName:      "OTM_" + code + "_" + date + ".pdf",
		FileData:      common.EncodePayload([]byte("%PDF-1.3 " + code)),
		Technician:    "Técnico",
		Date:          date,
	}
}

func TestClient_UploadListAndFetch(t *testing.T) {
	client, srv := newTestStore(t)
	ctx := context.Background()

	first, err := client.Upload(ctx, uploadRequest("123456789012", "01/02/2024"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if !first.Success || first.FileID == "" {
		t.Fatalf("expected success with file id, got %+v", first)
	}
	if _, err := client.Upload(ctx, uploadRequest("123456789012", "02/02/2024")); err != nil {
		t.Fatalf("second Upload error: %v", err)
	}
	if _, err := client.Upload(ctx, uploadRequest("999", "02/02/2024")); err != nil {
		t.Fatalf("third Upload error: %v", err)
	}

	files, err := client.List(ctx, "123456789012")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].FileID != first.FileID || files[0].Date != "01/02/2024" {
		t.Errorf("unexpected first entry: %+v", files[0])
	}

	doc, err := client.GetContent(ctx, first.FileID)
	if err != nil {
		t.Fatalf("GetContent error: %v", err)
	}
	if doc == nil || string(doc.Data) != "%PDF-1.3 123456789012" || doc.MimeType != "application/pdf" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	link, err := client.DownloadURL(ctx, first.FileID)
	if err != nil {
		t.Fatalf("DownloadURL error: %v", err)
	}
	if link != srv.URL+"/files/"+first.FileID {
		t.Errorf("unexpected download url %q", link)
	}

	resp, err := http.Get(link)
	if err != nil {
		t.Fatalf("GET file error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("unexpected file response: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestClient_ListUnknownCodeIsEmpty(t *testing.T) {
	client, _ := newTestStore(t)
	files, err := client.List(context.Background(), "none")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Fatalf("expected empty list, got %v", files)
	}
}

func TestClient_GetContentMissing(t *testing.T) {
	client, _ := newTestStore(t)
	doc, err := client.GetContent(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetContent error: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %+v", doc)
	}
}

func TestClient_UploadRejected(t *testing.T) {
	client, _ := newTestStore(t)
	req := uploadRequest("A1", "01/01/2024")
	req.FileData = "%%% not base64"

	_, err := client.Upload(context.Background(), req)
	if !errors.Is(err, ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}
}

func TestClient_UploadNonJSONBodyCountsAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>Moved</html>"))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).Upload(context.Background(), uploadRequest("A1", "01/01/2024"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if !resp.Success || resp.Message != "Enviado" {
		t.Fatalf("expected synthesized success, got %+v", resp)
	}
}

func TestClient_UploadSendsFormFields(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm error: %v", err)
		}
		got = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		_, _ = w.Write([]byte(`{"success":true,"fileId":"abc"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).Upload(context.Background(), uploadRequest("A1", "01/01/2024"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if resp.FileID != "abc" {
		t.Errorf("expected file id abc, got %q", resp.FileID)
	}
	want := map[string]string{
		"action":        "upload",
		"equipmentCode": "A1",
		"fileName":      "OTM_A1_01/01/2024.pdf",
		"technician":    "Técnico",
		"date":          "01/01/2024",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestClient_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	client := NewClient(srv.URL, time.Second)

	if _, err := client.Upload(context.Background(), uploadRequest("A1", "01/01/2024")); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("Upload: expected ErrUnexpectedStatus, got %v", err)
	}
	if _, err := client.List(context.Background(), "A1"); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("List: expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).Upload(context.Background(), uploadRequest("A1", "01/01/2024"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestServer_UnknownAction(t *testing.T) {
	_, srv := newTestStore(t)
	resp, err := http.Get(srv.URL + ExecPath + "?action=delete")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_MissingFile(t *testing.T) {
	_, srv := newTestStore(t)
	resp, err := http.Get(srv.URL + "/files/nope")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
