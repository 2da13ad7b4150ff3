package frontend

import (
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/sicoem/internal/backend/equipment"
	"github.com/jo-hoe/sicoem/internal/backend/queue"
	"github.com/jo-hoe/sicoem/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName = "index.html"
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type indexData struct {
	TotalReports      int
	PendingUploads    int
	EquipmentCode     string
	DefaultTechnician string
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	// Create template renderer
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}

	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)
	// Scanned QR codes land here
	e.GET("/equipment/:code", service.equipmentPageHandler)

	e.POST("/htmx/capture", service.htmxCaptureHandler)
	e.GET("/htmx/history", service.htmxHistoryHandler)
	e.GET("/htmx/stats", service.htmxStatsHandler)

	// Favicon (SVG) route
	e.GET("/icon.svg", service.iconHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, service.pageData(ctx, ""))
}

func (service *FrontendService) equipmentPageHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, service.pageData(ctx, ctx.Param("code")))
}

func (service *FrontendService) pageData(ctx echo.Context, code string) indexData {
	data := indexData{EquipmentCode: code, DefaultTechnician: service.config.DefaultTechnician}
	stats, err := service.coreService.Stats(ctx.Request().Context())
	if err != nil {
		slog.Warn("pageData: stats unavailable", "error", err)
		return data
	}
	data.TotalReports = stats.TotalReports
	data.PendingUploads = stats.PendingUploads
	return data
}

func (service *FrontendService) htmxCaptureHandler(ctx echo.Context) error {
	// Get uploaded file
	file, err := ctx.FormFile("image")
	if err != nil {
		slog.Error("htmxCaptureHandler: failed to get uploaded file",
			"status", http.StatusBadRequest, "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to get uploaded file")
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("htmxCaptureHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("htmxCaptureHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	image, err := io.ReadAll(src)
	if err != nil {
		slog.Error("htmxCaptureHandler: failed to read uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to read uploaded file")
	}

	code := strings.TrimSpace(ctx.FormValue("equipmentCode"))
	result, err := service.coreService.CaptureOTM(ctx.Request().Context(), core.CaptureRequest{
		EquipmentCode: code,
		Technician:    ctx.FormValue("technician"),
		Image:         image,
	})
	if errors.Is(err, core.ErrInvalidCapture) {
		return ctx.HTML(http.StatusBadRequest, `<div id="capture-result"><mark>Captura inválida</mark></div>`)
	}
	if err != nil {
		slog.Error("htmxCaptureHandler: failed to capture OTM",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to capture OTM")
	}

	// Refresh the history of the captured equipment out of band
	historyHTML, histErr := service.buildHistoryHTML(ctx, code)
	if histErr != nil {
		slog.Error("htmxCaptureHandler: failed to build history for OOB update", "error", histErr)
		return ctx.HTML(http.StatusOK, service.captureResultHTML(result))
	}
	historyOOB := fmt.Sprintf(`<div id="history" hx-swap-oob="true">%s</div>`, historyHTML)
	return ctx.HTML(http.StatusOK, service.captureResultHTML(result)+historyOOB)
}

func (service *FrontendService) captureResultHTML(result *core.CaptureResult) string {
	report := result.Report
	status := "Error de envío"
	switch {
	case result.Upload != nil && result.Upload.Outcome == queue.OutcomeDelivered:
		status = "Enviado"
	case result.Upload != nil && result.Upload.Outcome == queue.OutcomeQueued:
		status = "En cola"
	}
	return fmt.Sprintf(`<div id="capture-result"><p>OTM #%d guardada (%s %s): %s</p>
	<a href="/api/otm/%d/pdf">Descargar PDF</a></div>`,
		report.ID, html.EscapeString(report.DateFormatted), html.EscapeString(report.TimeFormatted),
		status, report.ID)
}

func (service *FrontendService) htmxHistoryHandler(ctx echo.Context) error {
	code := strings.TrimSpace(ctx.QueryParam("code"))
	if code == "" {
		return ctx.String(http.StatusBadRequest, "Missing equipment code")
	}
	historyHTML, err := service.buildHistoryHTML(ctx, code)
	if err != nil {
		slog.Error("htmxHistoryHandler: failed to build history",
			"status", http.StatusInternalServerError, "equipment_code", code, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load history")
	}

	// Prevent caching so the latest uploads are always shown
	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, historyHTML)
}

func (service *FrontendService) htmxStatsHandler(ctx echo.Context) error {
	stats, err := service.coreService.Stats(ctx.Request().Context())
	if err != nil {
		slog.Error("htmxStatsHandler: failed to collect stats", "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to collect stats")
	}
	connection := "sin conexión"
	if stats.Online {
		connection = "en línea"
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, fmt.Sprintf(`<p>Total: %d · Sincronizadas: %d · Pendientes: %d · %s</p>`,
		stats.TotalReports, stats.SyncedReports, stats.PendingUploads, connection))
}

func (service *FrontendService) buildHistoryHTML(ctx echo.Context, code string) (string, error) {
	history, err := service.coreService.History(ctx.Request().Context(), code)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	eq, err := service.coreService.FindEquipment(ctx.Request().Context(), code)
	if err != nil {
		slog.Warn("buildHistoryHTML: inventory unavailable", "equipment_code", code, "error", err)
	}
	if eq != nil {
		b.WriteString(equipmentHTML(eq))
	}

	b.WriteString(fmt.Sprintf(`<img src="%s" alt="QR %s" width="128" height="128">`,
		html.EscapeString("/api/equipment/"+url.PathEscape(code)+"/qr"), html.EscapeString(code)))

	if len(history) == 0 {
		b.WriteString(`<p>Sin OTM registradas.</p>`)
		return b.String(), nil
	}

	b.WriteString(`<table><thead><tr><th>Fecha</th><th>Técnico</th><th>Origen</th><th></th></tr></thead><tbody>`)
	for _, entry := range history {
		origin := "Drive"
		link := html.EscapeString(entry.URL)
		if entry.Source == queue.SourceLocal {
			origin = "Local"
			if !entry.Synced {
				origin = "Local (pendiente)"
			}
			link = fmt.Sprintf("/api/otm/%d/pdf", entry.ReportID)
		} else if entry.FileID != "" {
			link = html.EscapeString("/api/drive/" + url.PathEscape(entry.FileID))
		}
		when := entry.Date
		if entry.Time != "" {
			when += " " + entry.Time
		}
		b.WriteString(fmt.Sprintf(`<tr><td>%s</td><td>%s</td><td>%s</td><td><a href="%s">PDF</a></td></tr>`,
			html.EscapeString(when), html.EscapeString(entry.Technician), origin, link))
	}
	b.WriteString(`</tbody></table>`)
	return b.String(), nil
}

func equipmentHTML(eq *equipment.Equipment) string {
	return fmt.Sprintf(`<hgroup><h3>%s</h3><p>%s %s · Serie %s · %s</p><p>%s, %s · Estado: %s</p></hgroup>`,
		html.EscapeString(eq.Name),
		html.EscapeString(eq.Brand), html.EscapeString(eq.Model),
		html.EscapeString(eq.Serial), html.EscapeString(eq.Code),
		html.EscapeString(eq.Location), html.EscapeString(eq.Facility),
		html.EscapeString(eq.Status))
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}
