package docstore

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/common"
	"github.com/labstack/echo/v4"
)

const (
	// ExecPath is the single entry point of the store, mirroring an Apps Script web app.
	ExecPath = "/exec"
	mimePDF  = "application/pdf"
)

// Server implements the document store protocol on top of a DriveFileService.
type Server struct {
	files     database.DriveFileService
	publicURL string
	now       func() time.Time
}

// NewServer creates the store. publicURL is the externally reachable base used in
// download links, e.g. "http://localhost:8081".
func NewServer(files database.DriveFileService, publicURL string) *Server {
	return &Server{
		files:     files,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

type execRequest struct {
	Action        string `json:"action" form:"action" query:"action"`
	EquipmentCode string `json:"equipmentCode" form:"equipmentCode" query:"equipmentCode"`
	FileName      string `json:"fileName" form:"fileName" query:"fileName"`
	FileData      string `json:"fileData" form:"fileData" query:"fileData"`
	Technician    string `json:"technician" form:"technician" query:"technician"`
	Date          string `json:"date" form:"date" query:"date"`
	FileID        string `json:"fileId" form:"fileId" query:"fileId"`
}

func (s *Server) SetRoutes(e *echo.Echo) {
	e.GET(ExecPath, s.execHandler)
	e.POST(ExecPath, s.execHandler)
	e.GET("/files/:id", s.fileHandler)
}

func (s *Server) execHandler(ctx echo.Context) error {
	var req execRequest
	if err := ctx.Bind(&req); err != nil {
		slog.Warn("DocStore: failed to bind request", "error", err)
		return ctx.JSON(http.StatusOK, map[string]any{"success": false, "error": "malformed request"})
	}

	switch req.Action {
	case ActionUpload:
		return s.upload(ctx, req)
	case ActionList:
		return s.list(ctx, req)
	case ActionGetContent:
		return s.getContent(ctx, req)
	case ActionDownload:
		return s.download(ctx, req)
	default:
		slog.Warn("DocStore: unknown action", "action", req.Action)
		return ctx.JSON(http.StatusOK, map[string]any{"success": false, "error": fmt.Sprintf("unknown action %q", req.Action)})
	}
}

func (s *Server) upload(ctx echo.Context, req execRequest) error {
	if req.EquipmentCode == "" || req.FileName == "" || req.FileData == "" {
		return ctx.JSON(http.StatusOK, UploadResponse{Success: false, Error: "equipmentCode, fileName and fileData are required"})
	}
	content, err := common.DecodePayload(req.FileData)
	if err != nil {
		slog.Warn("DocStore: rejected upload with invalid payload", "file_name", req.FileName, "error", err)
		return ctx.JSON(http.StatusOK, UploadResponse{Success: false, Error: "invalid fileData"})
	}

	file := &database.DriveFile{
		FileID:        uuid.NewString(),
		EquipmentCode: req.EquipmentCode,
		FileName:      req.FileName,
		Date:          req.Date,
		Technician:    req.Technician,
		MimeType:      mimePDF,
		Content:       content,
		CreatedAt:     s.now(),
	}
	if err := s.files.CreateDriveFile(file); err != nil {
		slog.Error("DocStore: failed to store file", "file_name", req.FileName, "error", err)
		return ctx.JSON(http.StatusInternalServerError, UploadResponse{Success: false, Error: "failed to store file"})
	}

	slog.Info("DocStore: file stored",
		"file_id", file.FileID,
		"equipment_code", file.EquipmentCode,
		"file_name", file.FileName,
		"size_bytes", len(content))
	return ctx.JSON(http.StatusOK, UploadResponse{
		Success: true,
		FileID:  file.FileID,
		FileURL: s.fileURL(file.FileID),
		Message: "OTM guardada",
	})
}

func (s *Server) list(ctx echo.Context, req execRequest) error {
	files, err := s.files.ListDriveFiles(req.EquipmentCode)
	if err != nil {
		slog.Error("DocStore: failed to list files", "equipment_code", req.EquipmentCode, "error", err)
		return ctx.JSON(http.StatusInternalServerError, ListResponse{OTMs: []RemoteFile{}, Error: "failed to list files"})
	}

	otms := make([]RemoteFile, 0, len(files))
	for _, f := range files {
		otms = append(otms, RemoteFile{
			FileID:     f.FileID,
			FileName:   f.FileName,
			Date:       f.Date,
			Technician: f.Technician,
			URL:        s.fileURL(f.FileID),
		})
	}
	return ctx.JSON(http.StatusOK, ListResponse{OTMs: otms})
}

func (s *Server) getContent(ctx echo.Context, req execRequest) error {
	file, err := s.files.GetDriveFile(req.FileID)
	if err != nil {
		slog.Error("DocStore: failed to read file", "file_id", req.FileID, "error", err)
		return ctx.JSON(http.StatusInternalServerError, ContentResponse{Success: false, Error: "failed to read file"})
	}
	if file == nil {
		return ctx.JSON(http.StatusOK, ContentResponse{Success: false, Error: "file not found"})
	}
	return ctx.JSON(http.StatusOK, ContentResponse{
		Success:  true,
		Content:  common.EncodePayload(file.Content),
		MimeType: file.MimeType,
		FileName: file.FileName,
	})
}

func (s *Server) download(ctx echo.Context, req execRequest) error {
	file, err := s.files.GetDriveFile(req.FileID)
	if err != nil {
		slog.Error("DocStore: failed to read file", "file_id", req.FileID, "error", err)
		return ctx.JSON(http.StatusInternalServerError, DownloadResponse{Success: false, Error: "failed to read file"})
	}
	if file == nil {
		return ctx.JSON(http.StatusOK, DownloadResponse{Success: false, Error: "file not found"})
	}
	link := s.fileURL(file.FileID)
	return ctx.JSON(http.StatusOK, DownloadResponse{Success: true, URL: link, ViewURL: link})
}

func (s *Server) fileHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	file, err := s.files.GetDriveFile(id)
	if err != nil {
		slog.Error("DocStore: failed to read file", "file_id", id, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to read file")
	}
	if file == nil {
		return ctx.String(http.StatusNotFound, "File not found")
	}
	ctx.Response().Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.FileName))
	return ctx.Blob(http.StatusOK, file.MimeType, file.Content)
}

func (s *Server) fileURL(id string) string {
	return s.publicURL + "/files/" + id
}
