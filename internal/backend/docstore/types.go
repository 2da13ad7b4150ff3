package docstore

import "errors"

var (
	// ErrRemoteRejected is returned when the store answers with success=false.
	ErrRemoteRejected = errors.New("remote document store rejected the request")
	// ErrUnexpectedStatus is returned for responses outside the 2xx/3xx range.
	ErrUnexpectedStatus = errors.New("unexpected status from remote document store")
)

// Actions understood by the store endpoint.
const (
	ActionUpload     = "upload"
	ActionList       = "list"
	ActionGetContent = "getContent"
	ActionDownload   = "download"
)

// UploadRequest carries one OTM document to the store. FileData is base64.
type UploadRequest struct {
	EquipmentCode string `json:"equipmentCode" form:"equipmentCode"`
	FileName      string `json:"fileName" form:"fileName"`
	FileData      string `json:"fileData" form:"fileData"`
	Technician    string `json:"technician" form:"technician"`
	Date          string `json:"date" form:"date"`
}

type UploadResponse struct {
	Success bool   `json:"success"`
	FileID  string `json:"fileId,omitempty"`
	FileURL string `json:"fileUrl,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RemoteFile is one history entry reported by the store.
type RemoteFile struct {
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	Date       string `json:"date"`
	Technician string `json:"technician,omitempty"`
	URL        string `json:"url,omitempty"`
}

type ListResponse struct {
	OTMs  []RemoteFile `json:"otms"`
	Error string       `json:"error,omitempty"`
}

type ContentResponse struct {
	Success  bool   `json:"success"`
	Content  string `json:"content,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Error    string `json:"error,omitempty"`
}

type DownloadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	ViewURL string `json:"viewUrl,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Document is decoded file content fetched from the store.
type Document struct {
	FileName string
	MimeType string
	Data     []byte
}
