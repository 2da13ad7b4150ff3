package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/sicoem/internal/backend/commands"
	"github.com/jo-hoe/sicoem/internal/backend/commandstructure"
	"github.com/jo-hoe/sicoem/internal/backend/connectivity"
	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/backend/docstore"
	"github.com/jo-hoe/sicoem/internal/backend/equipment"
	"github.com/jo-hoe/sicoem/internal/backend/queue"
	"github.com/redis/go-redis/v9"
)

const (
	DateLayout = "02/01/2006"
	TimeLayout = "15:04"
)

// ErrInvalidCapture is returned when a capture lacks its equipment code or its image
// cannot be processed.
var ErrInvalidCapture = errors.New("invalid capture")

type CoreService struct {
	config          *ServiceConfig
	databaseService *database.SQLiteDatabase
	queue           *queue.Queue
	monitor         *connectivity.Monitor
	remote          *docstore.Client
	equipment       equipment.Lookup
	pipeline        *commandstructure.CommandInvoker
	location        *time.Location
	redisClients    []*redis.Client
	now             func() time.Time
	// cancel stops reconnect sweeps still running at Close
	cancel          context.CancelFunc
}

type CaptureRequest struct {
	EquipmentCode string
	Technician    string
	Image         []byte
}

// CaptureResult always carries the saved report. Upload is nil when UploadError is set.
type CaptureResult struct {
	Report      *database.Report    `json:"report"`
	Upload      *queue.UploadResult `json:"upload,omitempty"`
	UploadError string              `json:"uploadError,omitempty"`
}

type Stats struct {
	TotalReports   int  `json:"totalReports"`
	SyncedReports  int  `json:"syncedReports"`
	PendingUploads int  `json:"pendingUploads"`
	Online         bool `json:"online"`
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}
	service := &CoreService{
		config:          config,
		databaseService: databaseService,
		location:        config.Location(),
		now:             time.Now,
	}

	service.pipeline, err = commandstructure.NewCommandInvokerFromConfigs(config.CommandConfigs())
	if err != nil {
		_ = service.Close()
		return nil, fmt.Errorf("failed to build capture pipeline: %w", err)
	}
	slog.Info("capture pipeline configured", "commands", service.pipeline.Names())

	var remote queue.Remote
	if config.Drive.URL != "" {
		service.remote = docstore.NewClient(config.Drive.URL, time.Duration(config.Drive.TimeoutSeconds)*time.Second)
		remote = service.remote
	} else {
		slog.Warn("document store url not configured; uploads are disabled")
	}

	var store queue.PendingStore = queue.NewSQLitePendingStore(databaseService)
	if config.Queue.Backend == "redis" {
		client := service.redisClient(config.Queue.Redis.Addr)
		store = queue.NewRedisPendingStore(client, config.Queue.Redis.Key)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	service.cancel = cancel
	service.monitor = connectivity.NewMonitor(*config.Connectivity.StartOnline)
	service.queue = queue.NewQueue(store, remote, databaseService, service.monitor, queue.Options{
		Timeout:           time.Duration(config.Drive.TimeoutSeconds) * time.Second,
		DefaultTechnician: config.DefaultTechnician,
		BaseContext:       sweepCtx,
	})

	if config.Equipment.SheetURL != "" {
		var cache equipment.Cache
		if config.Equipment.RedisAddr != "" {
			cache = equipment.NewRedisCache(service.redisClient(config.Equipment.RedisAddr))
		}
		service.equipment = equipment.NewSheetLookup(
			config.Equipment.SheetURL,
			config.Equipment.Organization,
			time.Duration(config.Equipment.CacheSeconds)*time.Second,
			cache,
		)
	}

	return service, nil
}

// Start runs one sweep for uploads left over from a previous run and starts the
// connectivity prober when configured. It returns immediately.
func (service *CoreService) Start(ctx context.Context) {
	if service.monitor.IsOnline() {
		if _, err := service.queue.RetrySweep(ctx); err != nil {
			slog.Error("startup retry sweep failed", "error", err)
		}
	}
	if url := service.config.Connectivity.ProbeURL; url != "" {
		interval := time.Duration(service.config.Connectivity.ProbeIntervalSeconds) * time.Second
		prober := connectivity.NewProber(url, interval, service.monitor)
		go prober.Run(ctx)
		slog.Info("connectivity prober started", "url", url, "interval", interval)
	}
}

// CaptureOTM enhances the captured image, stores the report and hands the PDF to
// the upload queue. Only local failures are returned as errors.
func (service *CoreService) CaptureOTM(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	code := strings.TrimSpace(req.EquipmentCode)
	if code == "" {
		return nil, fmt.Errorf("%w: equipment code is required", ErrInvalidCapture)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidCapture)
	}

	processed, err := service.pipeline.Execute(req.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to process image: %w", ErrInvalidCapture, err)
	}

	capturedAt := service.now().In(service.location)
	report := &database.Report{
		EquipmentCode:  code,
		CapturedAt:     capturedAt,
		DateFormatted:  capturedAt.Format(DateLayout),
		TimeFormatted:  capturedAt.Format(TimeLayout),
		TechnicianName: strings.TrimSpace(req.Technician),
		Image:          processed,
	}
	if _, err := service.databaseService.CreateReport(report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	slog.Info("OTM report saved", "report_id", report.ID, "equipment_code", code)

	result := &CaptureResult{Report: report}
	pdf, err := commands.ImageToPDF(processed)
	if err != nil {
		slog.Error("failed to build OTM PDF", "report_id", report.ID, "error", err)
		result.UploadError = err.Error()
		return result, nil
	}

	upload, err := service.queue.Upload(ctx, queue.UploadRequest{
		ReportID:      report.ID,
		EquipmentCode: code,
		Document:      pdf,
		Technician:    report.TechnicianName,
		Date:          report.DateFormatted,
	})
	if err != nil {
		slog.Error("OTM upload not scheduled", "report_id", report.ID, "error", err)
		result.UploadError = err.Error()
		return result, nil
	}
	if upload.Outcome == queue.OutcomeDelivered {
		report.Synced = true
	}
	result.Upload = upload
	return result, nil
}

// History merges local reports with the remote listing for one equipment code.
func (service *CoreService) History(ctx context.Context, equipmentCode string) ([]queue.HistoryEntry, error) {
	return service.queue.FetchHistory(ctx, strings.TrimSpace(equipmentCode))
}

// GetReport returns the report including its image, or nil if it does not exist.
func (service *CoreService) GetReport(id int64) (*database.Report, error) {
	return service.databaseService.GetReportByID(id)
}

// ReportPDF renders a stored report as PDF and returns it with its file name.
// A missing report yields nil data and no error.
func (service *CoreService) ReportPDF(id int64) ([]byte, string, error) {
	report, err := service.databaseService.GetReportByID(id)
	if err != nil || report == nil {
		return nil, "", err
	}
	pdf, err := commands.ImageToPDF(report.Image)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render report %d: %w", id, err)
	}
	return pdf, queue.FileName(report.EquipmentCode, report.DateFormatted), nil
}

// RemoteDocument fetches a document from the remote store. Fetch failures degrade
// to nil so that local records stay viewable.
func (service *CoreService) RemoteDocument(ctx context.Context, fileID string) (*docstore.Document, error) {
	if service.remote == nil {
		return nil, nil
	}
	doc, err := service.remote.GetContent(ctx, fileID)
	if err != nil {
		slog.Warn("remote document unavailable", "file_id", fileID, "error", err)
		return nil, nil
	}
	return doc, nil
}

// DownloadURL returns a shareable link for a remote document, or "" when unavailable.
func (service *CoreService) DownloadURL(ctx context.Context, fileID string) string {
	if service.remote == nil {
		return ""
	}
	link, err := service.remote.DownloadURL(ctx, fileID)
	if err != nil {
		slog.Warn("download url unavailable", "file_id", fileID, "error", err)
		return ""
	}
	return link
}

// FindEquipment returns nil, nil when no inventory is configured or nothing matches.
func (service *CoreService) FindEquipment(ctx context.Context, code string) (*equipment.Equipment, error) {
	if service.equipment == nil {
		return nil, nil
	}
	return service.equipment.FindByCode(ctx, code)
}

func (service *CoreService) EquipmentQRCode(code string) ([]byte, error) {
	return equipment.QRCode(code, service.config.QRSize)
}

// SetOnline reports a connectivity change; a reconnect runs the retry sweep before returning.
func (service *CoreService) SetOnline(online bool) {
	service.monitor.SetOnline(online)
}

func (service *CoreService) IsOnline() bool {
	return service.monitor.IsOnline()
}

func (service *CoreService) PendingUploads(ctx context.Context) ([]*database.UploadTask, error) {
	return service.queue.Pending(ctx)
}

func (service *CoreService) GetTotalReports() (int, error) {
	total, _, err := service.databaseService.CountReports()
	return total, err
}

func (service *CoreService) Stats(ctx context.Context) (*Stats, error) {
	total, synced, err := service.databaseService.CountReports()
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	pending, err := service.queue.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending uploads: %w", err)
	}
	return &Stats{
		TotalReports:   total,
		SyncedReports:  synced,
		PendingUploads: len(pending),
		Online:         service.monitor.IsOnline(),
	}, nil
}

func (service *CoreService) Close() error {
	if service.cancel != nil {
		service.cancel()
	}
	var errs []error
	for _, client := range service.redisClients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if service.databaseService != nil {
		if err := service.databaseService.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// redisClient returns a shared client per address
func (service *CoreService) redisClient(addr string) *redis.Client {
	for _, client := range service.redisClients {
		if client.Options().Addr == addr {
			return client
		}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	service.redisClients = append(service.redisClients, client)
	return client
}

func getDatabaseService(config *ServiceConfig) (*database.SQLiteDatabase, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
