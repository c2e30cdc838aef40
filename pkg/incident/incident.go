package incident

import "time"

// Severity levels accepted for incidents.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Reporting sources.
const (
	SourceDesktop = "desktop"
	SourceMobile  = "mobile"
	SourceWeb     = "web"
)

// Row is one incidents record. Incidents are immutable after creation.
type Row struct {
	ID                    int64     `json:"id"`
	InstallationID        int64     `json:"installation_id"`
	ReporterUsername      string    `json:"reporter_username"`
	Note                  string    `json:"note"`
	TimeAdjustmentSeconds int64     `json:"time_adjustment_seconds"`
	Severity              string    `json:"severity"`
	Source                string    `json:"source"`
	CreatedAt             time.Time `json:"created_at"`
}

// Photo is a photo row nested under an incident in list responses.
type Photo struct {
	ID          int64     `json:"id"`
	IncidentID  int64     `json:"incident_id"`
	R2Key       string    `json:"r2_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// WithPhotos is an incident with its photos grouped in upload order.
type WithPhotos struct {
	Row
	Photos []Photo `json:"photos"`
}

// CreateRequest is the JSON body for POST /installations/:id/incidents.
type CreateRequest struct {
	ReporterUsername      string `json:"reporter_username"`
	Note                  string `json:"note" validate:"required,max=5000"`
	TimeAdjustmentSeconds int64  `json:"time_adjustment_seconds" validate:"gte=-86400,lte=86400"`
	Severity              string `json:"severity" validate:"required,oneof=low medium high critical"`
	Source                string `json:"source" validate:"omitempty,oneof=desktop mobile web"`
	ApplyToInstallation   bool   `json:"apply_to_installation"`
}

// InsertParams is a normalized incident ready to insert.
type InsertParams struct {
	InstallationID        int64
	ReporterUsername      string
	Note                  string
	TimeAdjustmentSeconds int64
	Severity              string
	Source                string
}

// appendIncidentNote builds the parent installation's new notes value when an
// incident is applied: existing notes get "\n[INCIDENT] <note>" appended,
// empty notes become the incident note itself.
func appendIncidentNote(current, note string) string {
	if current == "" {
		return note
	}
	return current + "\n[INCIDENT] " + note
}

// adjustedSeconds applies a time adjustment, clamping at zero.
func adjustedSeconds(current, adjustment int64) int64 {
	v := current + adjustment
	if v < 0 {
		return 0
	}
	return v
}
