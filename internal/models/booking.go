package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusOnProgress Status = "OnProgress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// AllowedTransitions is the booking state flow. Terminal states have no entry.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusOnProgress, StatusCancelled},
	StatusOnProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOnProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts the backend spellings seen in the wild ("on_progress", "canceled").
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.NewReplacer("_", "", " ", "", "-", "").Replace(strings.TrimSpace(raw))) {
	case "pending":
		return StatusPending
	case "onprogress", "inprogress":
		return StatusOnProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	}
	return Status(raw)
}

const (
	CategoryMassage = "Massage"
	CategoryBeauty  = "Beauty"
	CategoryGaspol  = "Gaspol"
)

type Booking struct {
	ID               int64     `json:"id"`
	CustomerID       int64     `json:"customer_id"`
	MitraID          *int64    `json:"mitra_id"`
	ServiceID        int64     `json:"service_id"`
	ServiceName      string    `json:"service_name"`
	ServicePrice     int64     `json:"service_price"`
	Variant          string    `json:"variant"`
	Category         string    `json:"category"`
	Status           Status    `json:"status"`
	ProgressTracking string    `json:"progress_tracking"`
	GenderPreference string    `json:"customer_gender"`
	ScheduledAt      string    `json:"booking_date"`
	Address          string    `json:"address"`
	Pickup           Coord     `json:"pickup"`
	PickupAddress    string    `json:"pickup_address"`
	Dropoff          *Coord    `json:"dropoff,omitempty"`
	DropoffAddress   string    `json:"dropoff_address,omitempty"`
	CancelReason     *string   `json:"cancel_reason"`
	Version          int64     `json:"version,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasMitra reports whether a partner is assigned.
func (b *Booking) HasMitra() bool {
	return b != nil && b.MitraID != nil && *b.MitraID != 0
}

func (b *Booking) IsGaspol() bool {
	return b != nil && strings.EqualFold(b.Category, CategoryGaspol)
}

type Coord struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func (c Coord) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// CreateBookingRequest is the body of POST /bookings.
type CreateBookingRequest struct {
	CustomerID       int64   `json:"customer_id"`
	ServiceID        int64   `json:"service_id"`
	ServiceName      string  `json:"service_name"`
	ServicePrice     int64   `json:"service_price"`
	Variant          string  `json:"variant"`
	Category         string  `json:"category,omitempty"`
	Status           Status  `json:"status"`
	GenderPreference string  `json:"customer_gender"`
	ScheduledAt      string  `json:"booking_date"`
	Address          string  `json:"address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	PickupAddress    string  `json:"pickup_address,omitempty"`
	Dropoff          *Coord  `json:"dropoff,omitempty"`
	DropoffAddress   string  `json:"dropoff_address,omitempty"`
}

// ProgressUpdate is sent by the mitra app as multipart to PUT /bookings/{id}/update.
type ProgressUpdate struct {
	ProgressTracking string
	ProofImage       []byte
	ProofFilename    string
	Complete         bool
}
