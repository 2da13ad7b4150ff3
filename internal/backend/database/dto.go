package database

import "time"

// Report is one captured OTM document as stored on the device.
type Report struct {
	ID             int64     `db:"id" json:"id"`
	EquipmentCode  string    `db:"equipment_code" json:"equipmentCode"`
	CapturedAt     time.Time `db:"captured_at" json:"capturedAt"`
	DateFormatted  string    `db:"date_formatted" json:"dateFormatted"` // DD/MM/YYYY in the configured zone
	TimeFormatted  string    `db:"time_formatted" json:"timeFormatted"` // HH:MM in the configured zone
	TechnicianName string    `db:"technician_name" json:"technicianName"`
	Image          []byte    `db:"image" json:"-"` // enhanced JPEG; nil when only metadata was selected
	Synced         bool      `db:"synced" json:"synced"`
}

// UploadTask is a document waiting for delivery to the remote store.
type UploadTask struct {
	ID            string    `json:"id"`
	ReportID      int64     `json:"reportId"`
	EquipmentCode string    `json:"equipmentCode"`
	FileName      string    `json:"fileName"`
	FileData      string    `json:"fileData"` // base64 encoded PDF
	Technician    string    `json:"technician"`
	Date          string    `json:"date"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DriveFile is a document held by the remote document store.
type DriveFile struct {
	FileID        string    `db:"file_id" json:"fileId"`
	EquipmentCode string    `db:"equipment_code" json:"equipmentCode"`
	FileName      string    `db:"file_name" json:"fileName"`
	Date          string    `db:"date" json:"date"`
	Technician    string    `db:"technician" json:"technician"`
	MimeType      string    `db:"mime_type" json:"mimeType"`
	Content       []byte    `db:"content" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
