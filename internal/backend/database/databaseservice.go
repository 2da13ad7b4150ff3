package database

import "database/sql"

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// CreateReport inserts the report and returns its assigned id.
	CreateReport(report *Report) (int64, error)
	// GetReportByID returns nil, nil if no report has the given id.
	GetReportByID(id int64) (*Report, error)
	// GetReportsByCode returns report metadata (no image) for one equipment code, newest first.
	GetReportsByCode(code string) ([]*Report, error)
	MarkReportSynced(id int64) error
	CountReports() (total int, synced int, err error)

	// AppendTask adds a task at the tail of the pending upload queue.
	AppendTask(task *UploadTask) error
	// RemoveTask deletes the task with the given id; removing an unknown id is not an error.
	RemoveTask(id string) error
	// ListTasks returns pending tasks in insertion order.
	ListTasks() ([]*UploadTask, error)
}

// DriveFileService persists the documents of the standalone document store.
type DriveFileService interface {
	CreateDriveFile(file *DriveFile) error
	// ListDriveFiles returns file metadata (no content) for one equipment code in insertion order.
	ListDriveFiles(code string) ([]*DriveFile, error)
	// GetDriveFile returns nil, nil if the file does not exist.
	GetDriveFile(fileID string) (*DriveFile, error)
}
