package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jo-hoe/sicoem/internal/common"
	"github.com/jo-hoe/sicoem/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimePDF  = "application/pdf"

	// maxImageBytes bounds a single capture upload.
	maxImageBytes = 32 << 20
)

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

// PendingUpload is the public view of a queued task. The payload is left out.
type PendingUpload struct {
	ID            string    `json:"id"`
	ReportID      int64     `json:"reportId"`
	EquipmentCode string    `json:"equipmentCode"`
	FileName      string    `json:"fileName"`
	Technician    string    `json:"technician"`
	Date          string    `json:"date"`
	CreatedAt     time.Time `json:"createdAt"`
}

type connectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type connectivityResponse struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)

	e.POST("/api/otm", s.captureHandler)
	e.GET("/api/otm/:id/image", s.reportImageHandler)
	e.GET("/api/otm/:id/pdf", s.reportPDFHandler)

	e.GET("/api/equipment/:code", s.equipmentHandler)
	e.GET("/api/equipment/:code/qr", s.equipmentQRHandler)
	e.GET("/api/equipment/:code/otm", s.historyHandler)

	e.GET("/api/drive/:fileId", s.remoteDocumentHandler)
	e.GET("/api/uploads/pending", s.pendingHandler)
	e.PUT("/api/connectivity", s.connectivityHandler)
	e.GET("/api/stats", s.statsHandler)
}

func (s *APIService) probeHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

func (s *APIService) captureHandler(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing image file")
	}
	if file.Size > maxImageBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}
	src, err := file.Open()
	if err != nil {
		slog.Error("captureHandler: failed to open uploaded file", "error", err, "filename", file.Filename)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("captureHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()
	image, err := io.ReadAll(src)
	if err != nil {
		slog.Error("captureHandler: failed to read uploaded file", "error", err, "filename", file.Filename)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}

	result, err := s.coreService.CaptureOTM(ctx.Request().Context(), core.CaptureRequest{
		EquipmentCode: ctx.FormValue("equipmentCode"),
		Technician:    ctx.FormValue("technician"),
		Image:         image,
	})
	if errors.Is(err, core.ErrInvalidCapture) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		slog.Error("captureHandler: failed to capture OTM", "error", err, "filename", file.Filename)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to capture OTM")
	}
	return ctx.JSON(http.StatusCreated, result)
}

func (s *APIService) reportImageHandler(ctx echo.Context) error {
	id, err := reportID(ctx)
	if err != nil {
		return err
	}
	report, err := s.coreService.GetReport(id)
	if err != nil {
		slog.Error("reportImageHandler: failed to load report", "report_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load report")
	}
	if report == nil || len(report.Image) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return ctx.Blob(http.StatusOK, mimeJPEG, report.Image)
}

func (s *APIService) reportPDFHandler(ctx echo.Context) error {
	id, err := reportID(ctx)
	if err != nil {
		return err
	}
	pdf, fileName, err := s.coreService.ReportPDF(id)
	if err != nil {
		slog.Error("reportPDFHandler: failed to render report", "report_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render report")
	}
	if pdf == nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return ctx.Blob(http.StatusOK, mimePDF, pdf)
}

func (s *APIService) equipmentHandler(ctx echo.Context) error {
	code := ctx.Param("code")
	eq, err := s.coreService.FindEquipment(ctx.Request().Context(), code)
	if err != nil {
		slog.Error("equipmentHandler: inventory unavailable", "equipment_code", code, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "equipment inventory unavailable")
	}
	if eq == nil {
		return echo.NewHTTPError(http.StatusNotFound, "equipment not found")
	}
	return ctx.JSON(http.StatusOK, eq)
}

func (s *APIService) equipmentQRHandler(ctx echo.Context) error {
	code := ctx.Param("code")
	qr, err := s.coreService.EquipmentQRCode(code)
	if err != nil {
		slog.Error("equipmentQRHandler: failed to encode QR code", "equipment_code", code, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to encode QR code")
	}
	// QR images are stable per code
	ctx.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return ctx.Blob(http.StatusOK, mimePNG, qr)
}

func (s *APIService) historyHandler(ctx echo.Context) error {
	code := ctx.Param("code")
	history, err := s.coreService.History(ctx.Request().Context(), code)
	if err != nil {
		slog.Error("historyHandler: failed to load history", "equipment_code", code, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}
	return ctx.JSON(http.StatusOK, history)
}

func (s *APIService) remoteDocumentHandler(ctx echo.Context) error {
	fileID := ctx.Param("fileId")
	doc, err := s.coreService.RemoteDocument(ctx.Request().Context(), fileID)
	if err != nil {
		slog.Error("remoteDocumentHandler: failed to fetch document", "file_id", fileID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch document")
	}
	if doc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not available")
	}
	mime := doc.MimeType
	if mime == "" {
		mime = mimePDF
	}
	if doc.FileName != "" {
		ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", doc.FileName))
	}
	return ctx.Blob(http.StatusOK, mime, doc.Data)
}

func (s *APIService) pendingHandler(ctx echo.Context) error {
	tasks, err := s.coreService.PendingUploads(ctx.Request().Context())
	if err != nil {
		slog.Error("pendingHandler: failed to list pending uploads", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list pending uploads")
	}
	pending := make([]PendingUpload, 0, len(tasks))
	for _, task := range tasks {
		pending = append(pending, PendingUpload{
			ID:            task.ID,
			ReportID:      task.ReportID,
			EquipmentCode: task.EquipmentCode,
			FileName:      task.FileName,
			Technician:    task.Technician,
			Date:          task.Date,
			CreatedAt:     task.CreatedAt,
		})
	}
	return ctx.JSON(http.StatusOK, pending)
}

func (s *APIService) connectivityHandler(ctx echo.Context) error {
	var req connectivityRequest
	if err := common.BindAndValidate(ctx, &req); err != nil {
		return err
	}
	s.coreService.SetOnline(*req.Online)

	tasks, err := s.coreService.PendingUploads(ctx.Request().Context())
	if err != nil {
		slog.Error("connectivityHandler: failed to list pending uploads", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list pending uploads")
	}
	return ctx.JSON(http.StatusOK, connectivityResponse{
		Online:  s.coreService.IsOnline(),
		Pending: len(tasks),
	})
}

func (s *APIService) statsHandler(ctx echo.Context) error {
	stats, err := s.coreService.Stats(ctx.Request().Context())
	if err != nil {
		slog.Error("statsHandler: failed to collect stats", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to collect stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func reportID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	return id, nil
}
