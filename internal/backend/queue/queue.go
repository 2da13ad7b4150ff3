package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/backend/docstore"
	"github.com/jo-hoe/sicoem/internal/common"
)

var (
	// ErrInvalidPayload means the upload could not be built; it is never queued.
	ErrInvalidPayload = errors.New("invalid upload payload")
	// ErrRemoteNotConfigured means no remote document store is set up.
	ErrRemoteNotConfigured = errors.New("remote document store not configured")
)

const DefaultTechnician = "Técnico"

// Remote is the document store the queue delivers to.
type Remote interface {
	Upload(ctx context.Context, req docstore.UploadRequest) (*docstore.UploadResponse, error)
	List(ctx context.Context, equipmentCode string) ([]docstore.RemoteFile, error)
}

// ReportStore gives the queue access to the local OTM reports.
type ReportStore interface {
	GetReportsByCode(code string) ([]*database.Report, error)
	MarkReportSynced(id int64) error
}

// Signal reports connectivity and announces reconnects.
type Signal interface {
	IsOnline() bool
	OnRestored(fn func())
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
)

// UploadRequest is one document to deliver. Document holds the raw PDF bytes.
type UploadRequest struct {
	ReportID      int64
	EquipmentCode string
	Document      []byte
	Technician    string
	Date          string // DD/MM/YYYY
}

type UploadResult struct {
	Outcome Outcome `json:"status"`
	FileID  string  `json:"fileId,omitempty"`
	TaskID  string  `json:"taskId,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

type Options struct {
	// Timeout bounds a single delivery attempt; zero means docstore.DefaultTimeout.
	Timeout           time.Duration
	DefaultTechnician string
	// BaseContext bounds sweeps started by reconnects; nil means context.Background().
	BaseContext       context.Context
}

// Queue delivers OTM documents to the remote store, parking them in a durable
// pending list while the device is offline or the store fails.
type Queue struct {
	store             PendingStore
	remote            Remote
	reports           ReportStore
	signal            Signal
	timeout           time.Duration
	defaultTechnician string
	baseCtx           context.Context
	now               func() time.Time

	sweepMu sync.Mutex
}

// NewQueue wires the queue and subscribes a retry sweep to every reconnect.
// remote may be nil when no store is configured.
func NewQueue(store PendingStore, remote Remote, reports ReportStore, signal Signal, opts Options) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = docstore.DefaultTimeout
	}
	if opts.DefaultTechnician == "" {
		opts.DefaultTechnician = DefaultTechnician
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	q := &Queue{
		store:             store,
		remote:            remote,
		reports:           reports,
		signal:            signal,
		timeout:           opts.Timeout,
		defaultTechnician: opts.DefaultTechnician,
		baseCtx:           opts.BaseContext,
		now:               time.Now,
	}
	signal.OnRestored(func() {
		if _, err := q.RetrySweep(q.baseCtx); err != nil {
			slog.Error("Queue: retry sweep failed", "error", err)
		}
	})
	return q
}

// FileName derives the remote file name from equipment code and DD/MM/YYYY date.
func FileName(equipmentCode, date string) string {
	return fmt.Sprintf("OTM_%s_%s.pdf", equipmentCode, strings.ReplaceAll(date, "/", "-"))
}

// Upload delivers the document right away when online, otherwise or on any delivery
// failure it queues the document and reports OutcomeQueued. Only payload and local
// persistence problems are returned as errors.
func (q *Queue) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if strings.TrimSpace(req.EquipmentCode) == "" {
		return nil, fmt.Errorf("%w: equipment code is required", ErrInvalidPayload)
	}
	if len(req.Document) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidPayload)
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidPayload)
	}
	if q.remote == nil {
		return nil, ErrRemoteNotConfigured
	}

	technician := req.Technician
	if technician == "" {
		technician = q.defaultTechnician
	}
	task := &database.UploadTask{
		ID:            uuid.NewString(),
		ReportID:      req.ReportID,
		EquipmentCode: req.EquipmentCode,
		FileName:      FileName(req.EquipmentCode, req.Date),
		FileData:      common.EncodePayload(req.Document),
		Technician:    technician,
		Date:          req.Date,
		CreatedAt:     q.now(),
	}

	if !q.signal.IsOnline() {
		return q.enqueue(ctx, task, "offline")
	}

	fileID, err := q.deliver(ctx, task)
	if err != nil {
		slog.Warn("Queue: delivery failed, queuing for retry",
			"equipment_code", task.EquipmentCode,
			"file_name", task.FileName,
			"error", err)
		return q.enqueue(ctx, task, err.Error())
	}
	return &UploadResult{Outcome: OutcomeDelivered, FileID: fileID}, nil
}

// RetrySweep attempts every pending task once, in pending-list order, and removes
// the delivered ones. It returns the number of delivered and removed tasks. A task
// that cannot be removed does not stop the sweep; such errors are joined and
// returned at the end. Concurrent sweeps are serialized.
func (q *Queue) RetrySweep(ctx context.Context) (int, error) {
	q.sweepMu.Lock()
	defer q.sweepMu.Unlock()

	tasks, err := q.store.ListTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending uploads: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	if q.remote == nil {
		slog.Warn("Queue: pending uploads but no remote configured", "pending", len(tasks))
		return 0, nil
	}

	slog.Info("Queue: processing pending uploads", "pending", len(tasks))
	delivered := 0
	var errs []error
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if _, err := q.deliver(ctx, task); err != nil {
			slog.Warn("Queue: retry failed, keeping task", "task_id", task.ID, "file_name", task.FileName, "error", err)
			continue
		}
		if err := q.store.RemoveTask(ctx, task.ID); err != nil {
			slog.Error("Queue: failed to remove delivered task", "task_id", task.ID, "error", err)
			errs = append(errs, fmt.Errorf("failed to remove delivered task %s: %w", task.ID, err))
			continue
		}
		delivered++
	}
	slog.Info("Queue: retry sweep finished", "delivered", delivered, "remaining", len(tasks)-delivered)
	return delivered, errors.Join(errs...)
}

// Pending returns the queued tasks in order.
func (q *Queue) Pending(ctx context.Context) ([]*database.UploadTask, error) {
	return q.store.ListTasks(ctx)
}

func (q *Queue) enqueue(ctx context.Context, task *database.UploadTask, reason string) (*UploadResult, error) {
	if err := q.store.AppendTask(ctx, task); err != nil {
		slog.Error("Queue: failed to persist pending upload", "task_id", task.ID, "error", err)
		return nil, fmt.Errorf("failed to queue upload: %w", err)
	}
	slog.Info("Queue: task queued", "task_id", task.ID, "file_name", task.FileName, "reason", reason)
	return &UploadResult{Outcome: OutcomeQueued, TaskID: task.ID, Reason: reason}, nil
}

// deliver performs one bounded attempt and flags the report as synced on success.
func (q *Queue) deliver(ctx context.Context, task *database.UploadTask) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	resp, err := q.remote.Upload(attemptCtx, docstore.UploadRequest{
		EquipmentCode: task.EquipmentCode,
		FileName:      task.FileName,
		FileData:      task.FileData,
		Technician:    task.Technician,
		Date:          task.Date,
	})
	if err != nil {
		return "", err
	}

	if task.ReportID != 0 {
		// the remote copy exists now; a failed flag update must not requeue it
		if err := q.reports.MarkReportSynced(task.ReportID); err != nil {
			slog.Error("Queue: failed to mark report synced", "report_id", task.ReportID, "error", err)
		}
	}
	slog.Info("Queue: document delivered", "file_name", task.FileName, "file_id", resp.FileID)
	return resp.FileID, nil
}
