package service

import (
	"regexp"
	"strings"
	"time"

	"layanan/internal/models"
)

// Presentation is the display form of a booking status.
type Presentation struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

var statusPresentation = map[models.Status]Presentation{
	models.StatusPending:    {Label: "Menunggu Mitra", Color: "warning", Icon: "time-outline"},
	models.StatusOnProgress: {Label: "Sedang Berlangsung", Color: "primary", Icon: "sync-outline"},
	models.StatusCompleted:  {Label: "Selesai", Color: "success", Icon: "checkmark-circle-outline"},
	models.StatusCancelled:  {Label: "Dibatalkan", Color: "danger", Icon: "close-circle-outline"},
}

var unknownPresentation = Presentation{Label: "Status Tidak Dikenal", Color: "medium", Icon: "help-circle-outline"}

var therapistTerm = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(models.TherapistTerm))

// Present maps a status, its progress text and the service category to what
// the UI shows. Non-empty progress text replaces the default label; for the
// Gaspol category the therapist term in it becomes the driver term.
func Present(status models.Status, progressText, category string) Presentation {
	p, ok := statusPresentation[status]
	if !ok {
		p = unknownPresentation
	}
	if strings.TrimSpace(progressText) == "" {
		return p
	}
	text := progressText
	if strings.EqualFold(strings.TrimSpace(category), models.CategoryGaspol) {
		text = therapistTerm.ReplaceAllStringFunc(text, driverTermLike)
	}
	p.Label = text
	return p
}

// driverTermLike renders the driver term in the letter case of the matched word.
func driverTermLike(match string) string {
	switch match {
	case strings.ToUpper(match):
		return strings.ToUpper(models.DriverTerm)
	case strings.ToLower(match):
		return strings.ToLower(models.DriverTerm)
	}
	return models.DriverTerm
}

// SearchProgress is the decorative percentage shown while a search runs. It
// depends only on elapsed time and never on request state.
func SearchProgress(elapsed, duration time.Duration) int {
	if duration <= 0 || elapsed >= duration {
		return 100
	}
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed * 100 / duration)
}
