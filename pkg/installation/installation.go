package installation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default status for events that do not report one.
const StatusUnknown = "unknown"

// Placeholder defaults for manually captured records.
const (
	manualBrand   = "N/A"
	manualVersion = "N/A"
	manualClient  = "Sin cliente"
	manualStatus  = "manual"
	manualOSInfo  = "manual"
)

// Row is one installations record.
type Row struct {
	ID                      int64     `json:"id"`
	Timestamp               time.Time `json:"timestamp"`
	DriverBrand             string    `json:"driver_brand"`
	DriverVersion           string    `json:"driver_version"`
	Status                  string    `json:"status"`
	ClientName              string    `json:"client_name"`
	DriverDescription       string    `json:"driver_description"`
	InstallationTimeSeconds int64     `json:"installation_time_seconds"`
	OSInfo                  string    `json:"os_info"`
	Notes                   string    `json:"notes"`
}

// CreateRequest is the JSON body for POST /installations and POST /records.
// Every field is optional; defaults depend on the route.
type CreateRequest struct {
	Timestamp               *time.Time `json:"timestamp"`
	DriverBrand             string     `json:"driver_brand"`
	DriverVersion           string     `json:"driver_version"`
	Status                  string     `json:"status"`
	ClientName              string     `json:"client_name"`
	DriverDescription       string     `json:"driver_description"`
	InstallationTimeSeconds *int64     `json:"installation_time_seconds" validate:"omitempty,gte=0"`
	OSInfo                  string     `json:"os_info"`
	Notes                   string     `json:"notes"`
}

// InsertParams is a fully normalized row ready to insert.
type InsertParams struct {
	Timestamp               time.Time
	DriverBrand             string
	DriverVersion           string
	Status                  string
	ClientName              string
	DriverDescription       string
	InstallationTimeSeconds int64
	OSInfo                  string
	Notes                   string
}

// Normalize fills installer-event defaults: empty strings stay empty, missing
// time is zero, missing timestamp is now, missing status is "unknown".
func (r CreateRequest) Normalize(now time.Time) InsertParams {
	p := InsertParams{
		Timestamp:         now,
		DriverBrand:       r.DriverBrand,
		DriverVersion:     r.DriverVersion,
		Status:            r.Status,
		ClientName:        r.ClientName,
		DriverDescription: r.DriverDescription,
		OSInfo:            r.OSInfo,
		Notes:             r.Notes,
	}
	if r.Timestamp != nil {
		p.Timestamp = *r.Timestamp
	}
	if r.InstallationTimeSeconds != nil {
		p.InstallationTimeSeconds = *r.InstallationTimeSeconds
	}
	if p.Status == "" {
		p.Status = StatusUnknown
	}
	return p
}

// NormalizeManual fills the explicit placeholders used by manually captured
// records.
func (r CreateRequest) NormalizeManual(now time.Time) InsertParams {
	p := r.Normalize(now)
	if r.DriverBrand == "" {
		p.DriverBrand = manualBrand
	}
	if r.DriverVersion == "" {
		p.DriverVersion = manualVersion
	}
	if r.ClientName == "" {
		p.ClientName = manualClient
	}
	if r.Status == "" {
		p.Status = manualStatus
	}
	if r.OSInfo == "" {
		p.OSInfo = manualOSInfo
	}
	return p
}

// UpdateRequest is the JSON body for PUT /installations/:id. Only notes and
// installation time are updatable; a missing field binds SQL NULL.
type UpdateRequest struct {
	Notes                   *string `json:"notes"`
	InstallationTimeSeconds *int64  `json:"installation_time_seconds" validate:"omitempty,gte=0"`
}

// Filters holds the query parameters for listing and statistics.
type Filters struct {
	Brand      string
	Status     string
	ClientName string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
}

// ParseFilters reads the shared filter query parameters. Invalid dates or
// limits yield an error for a 400 response.
func ParseFilters(q url.Values) (Filters, error) {
	f := Filters{
		Brand:      q.Get("brand"),
		Status:     q.Get("status"),
		ClientName: q.Get("client_name"),
	}

	if v := q.Get("start_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, fmt.Errorf("start_date invalida: %s", v)
		}
		f.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, fmt.Errorf("end_date invalida: %s", v)
		}
		f.EndDate = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("limit invalido: %s", v)
		}
		f.Limit = n
	}

	return f, nil
}

// parseDate accepts a full ISO-8601 instant or a bare date.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// Apply filters rows in memory and truncates to the limit. The date range is
// semi-closed: [start, end).
func (f Filters) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Brand != "" && !strings.EqualFold(r.DriverBrand, f.Brand) {
			continue
		}
		if f.Status != "" && !strings.EqualFold(r.Status, f.Status) {
			continue
		}
		if f.ClientName != "" && !strings.Contains(strings.ToLower(r.ClientName), strings.ToLower(f.ClientName)) {
			continue
		}
		if f.StartDate != nil && r.Timestamp.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && !r.Timestamp.Before(*f.EndDate) {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
