package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS otm_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	equipment_code TEXT NOT NULL,
	captured_at TEXT NOT NULL,
	date_formatted TEXT NOT NULL,
	time_formatted TEXT NOT NULL,
	technician_name TEXT NOT NULL,
	image BLOB NOT NULL,
	synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_otm_reports_equipment_code ON otm_reports (equipment_code);
CREATE INDEX IF NOT EXISTS idx_otm_reports_date_formatted ON otm_reports (date_formatted);
CREATE TABLE IF NOT EXISTS pending_uploads (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	report_id INTEGER NOT NULL,
	equipment_code TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_data TEXT NOT NULL,
	technician TEXT NOT NULL,
	date TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS drive_files (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id TEXT NOT NULL UNIQUE,
	equipment_code TEXT NOT NULL,
	file_name TEXT NOT NULL,
	date TEXT NOT NULL,
	technician TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	content BLOB NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drive_files_equipment_code ON drive_files (equipment_code);
`

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every pooled connection to ":memory:" would open its own empty database
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	if _, err := s.db.Exec(schema); err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreateReport(report *Report) (int64, error) {
	if report == nil {
		return 0, fmt.Errorf("report must not be nil")
	}
	res, err := s.db.Exec(`INSERT INTO otm_reports
		(equipment_code, captured_at, date_formatted, time_formatted, technician_name, image, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.EquipmentCode,
		formatTime(report.CapturedAt),
		report.DateFormatted,
		report.TimeFormatted,
		report.TechnicianName,
		report.Image,
		report.Synced,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read report id: %w", err)
	}
	report.ID = id
	return id, nil
}

func (s *SQLiteDatabase) GetReportByID(id int64) (*Report, error) {
	row := s.db.QueryRow(`SELECT id, equipment_code, captured_at, date_formatted, time_formatted,
		technician_name, image, synced FROM otm_reports WHERE id = ?`, id)

	var report Report
	var capturedAt string
	err := row.Scan(&report.ID, &report.EquipmentCode, &capturedAt, &report.DateFormatted,
		&report.TimeFormatted, &report.TechnicianName, &report.Image, &report.Synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if report.CapturedAt, err = parseTime(capturedAt); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *SQLiteDatabase) GetReportsByCode(code string) ([]*Report, error) {
	rows, err := s.db.Query(`SELECT id, equipment_code, captured_at, date_formatted, time_formatted,
		technician_name, synced FROM otm_reports WHERE equipment_code = ?
		ORDER BY captured_at DESC, id DESC`, code)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	reports := make([]*Report, 0)
	for rows.Next() {
		var report Report
		var capturedAt string
		if err := rows.Scan(&report.ID, &report.EquipmentCode, &capturedAt, &report.DateFormatted,
			&report.TimeFormatted, &report.TechnicianName, &report.Synced); err != nil {
			return nil, err
		}
		if report.CapturedAt, err = parseTime(capturedAt); err != nil {
			return nil, err
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

func (s *SQLiteDatabase) MarkReportSynced(id int64) error {
	_, err := s.db.Exec("UPDATE otm_reports SET synced = 1 WHERE id = ?", id)
	return err
}

func (s *SQLiteDatabase) CountReports() (int, int, error) {
	var total, synced int
	row := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(synced), 0) FROM otm_reports")
	if err := row.Scan(&total, &synced); err != nil {
		return 0, 0, err
	}
	return total, synced, nil
}

func (s *SQLiteDatabase) AppendTask(task *UploadTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task must have an id")
	}
	_, err := s.db.Exec(`INSERT INTO pending_uploads
		(id, report_id, equipment_code, file_name, file_data, technician, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ReportID, task.EquipmentCode, task.FileName, task.FileData,
		task.Technician, task.Date, formatTime(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append upload task: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RemoveTask(id string) error {
	_, err := s.db.Exec("DELETE FROM pending_uploads WHERE id = ?", id)
	return err
}

func (s *SQLiteDatabase) ListTasks() ([]*UploadTask, error) {
	rows, err := s.db.Query(`SELECT id, report_id, equipment_code, file_name, file_data,
		technician, date, created_at FROM pending_uploads ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	tasks := make([]*UploadTask, 0)
	for rows.Next() {
		var task UploadTask
		var createdAt string
		if err := rows.Scan(&task.ID, &task.ReportID, &task.EquipmentCode, &task.FileName,
			&task.FileData, &task.Technician, &task.Date, &createdAt); err != nil {
			return nil, err
		}
		if task.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteDatabase) CreateDriveFile(file *DriveFile) error {
	if file == nil || file.FileID == "" {
		return fmt.Errorf("drive file must have an id")
	}
	_, err := s.db.Exec(`INSERT INTO drive_files
		(file_id, equipment_code, file_name, date, technician, mime_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.FileID, file.EquipmentCode, file.FileName, file.Date, file.Technician,
		file.MimeType, file.Content, formatTime(file.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to store drive file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListDriveFiles(code string) ([]*DriveFile, error) {
	rows, err := s.db.Query(`SELECT file_id, equipment_code, file_name, date, technician, mime_type,
		created_at FROM drive_files WHERE equipment_code = ? ORDER BY seq ASC`, code)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	files := make([]*DriveFile, 0)
	for rows.Next() {
		var file DriveFile
		var createdAt string
		if err := rows.Scan(&file.FileID, &file.EquipmentCode, &file.FileName, &file.Date,
			&file.Technician, &file.MimeType, &createdAt); err != nil {
			return nil, err
		}
		if file.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		files = append(files, &file)
	}
	return files, rows.Err()
}

func (s *SQLiteDatabase) GetDriveFile(fileID string) (*DriveFile, error) {
	row := s.db.QueryRow(`SELECT file_id, equipment_code, file_name, date, technician, mime_type,
		content, created_at FROM drive_files WHERE file_id = ?`, fileID)

	var file DriveFile
	var createdAt string
	err := row.Scan(&file.FileID, &file.EquipmentCode, &file.FileName, &file.Date,
		&file.Technician, &file.MimeType, &file.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if file.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &file, nil
}

// timestamps are stored as RFC 3339 text in UTC so they sort lexically
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", value, err)
	}
	return t, nil
}

// fixed-width fractional seconds keep lexical and chronological order aligned
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
