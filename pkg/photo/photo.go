package photo

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Size limits for uploaded photos.
const (
	MinSizeBytes = 1024
	MaxSizeBytes = 5 * 1024 * 1024
)

// Row is one incident_photos record. Photos are immutable; the blob at R2Key
// is owned by the row.
type Row struct {
	ID          int64     `json:"id"`
	IncidentID  int64     `json:"incident_id"`
	R2Key       string    `json:"r2_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// extensions maps each allowed content type to its blob key extension.
var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ExtensionFor returns the key extension for an allowed content type.
// The second result is false for disallowed types.
func ExtensionFor(contentType string) (string, bool) {
	ext, ok := extensions[contentType]
	return ext, ok
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// MatchesMagic checks that the body's leading bytes match the declared
// content type. WEBP needs RIFF at offset 0 and WEBP at offset 8.
func MatchesMagic(contentType string, body []byte) bool {
	switch contentType {
	case "image/jpeg":
		return bytes.HasPrefix(body, jpegMagic)
	case "image/png":
		return bytes.HasPrefix(body, pngMagic)
	case "image/webp":
		return len(body) >= 12 &&
			bytes.Equal(body[0:4], riffMagic) &&
			bytes.Equal(body[8:12], webpMagic)
	}
	return false
}

// SanitizeFileName replaces every character outside [A-Za-z0-9._-] with an
// underscore and trims leading and trailing underscores. An empty name, or one
// left with only dots, underscores and hyphens, falls back to incident_<id>.jpg.
func SanitizeFileName(name string, incidentID int64) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" || strings.Trim(out, "._-") == "" {
		return fmt.Sprintf("incident_%d.jpg", incidentID)
	}
	return out
}

// BuildKey builds the blob key:
// incidents/<installationId>/<incidentId>/<compactIsoTs>_<rand>.<ext>.
func BuildKey(installationID, incidentID int64, now time.Time, rand, ext string) string {
	return fmt.Sprintf("incidents/%d/%d/%s_%s.%s",
		installationID, incidentID, now.UTC().Format("20060102T150405Z"), rand, ext)
}
