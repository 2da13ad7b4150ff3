package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/backend/docstore"
)

type Source string

const (
	SourceLocal Source = "local"
	SourceDrive Source = "drive"
)

// HistoryEntry is one row of an equipment's OTM history.
type HistoryEntry struct {
	Source     Source `json:"source"`
	ReportID   int64  `json:"reportId,omitempty"`
	FileID     string `json:"fileId,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	Date       string `json:"date"`
	Time       string `json:"time,omitempty"`
	Technician string `json:"technician,omitempty"`
	Synced     bool   `json:"synced"`
	URL        string `json:"url,omitempty"`
}

// MergeHistory lists local reports first, in their given order, followed by remote
// files whose date matches no local report. Two different documents of the same
// equipment and day therefore collapse into the local one.
func MergeHistory(local []*database.Report, remote []docstore.RemoteFile) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(local)+len(remote))
	localDates := make(map[string]struct{}, len(local))
	for _, r := range local {
		localDates[r.DateFormatted] = struct{}{}
		entries = append(entries, HistoryEntry{
			Source:     SourceLocal,
			ReportID:   r.ID,
			FileName:   FileName(r.EquipmentCode, r.DateFormatted),
			Date:       r.DateFormatted,
			Time:       r.TimeFormatted,
			Technician: r.TechnicianName,
			Synced:     r.Synced,
		})
	}
	for _, f := range remote {
		if _, dup := localDates[f.Date]; dup {
			continue
		}
		entries = append(entries, HistoryEntry{
			Source:     SourceDrive,
			FileID:     f.FileID,
			FileName:   f.FileName,
			Date:       f.Date,
			Technician: f.Technician,
			Synced:     true,
			URL:        f.URL,
		})
	}
	return entries
}

// FetchHistory merges local reports with the remote listing. Local failures are
// returned; a failing or missing remote only drops the remote part.
func (q *Queue) FetchHistory(ctx context.Context, equipmentCode string) ([]HistoryEntry, error) {
	local, err := q.reports.GetReportsByCode(equipmentCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load local reports: %w", err)
	}

	var remote []docstore.RemoteFile
	if q.remote != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, q.timeout)
		defer cancel()
		remote, err = q.remote.List(fetchCtx, equipmentCode)
		if err != nil {
			slog.Warn("Queue: remote history unavailable, showing local entries only",
				"equipment_code", equipmentCode, "error", err)
			remote = nil
		}
	}
	return MergeHistory(local, remote), nil
}
