package models

// Mitra is the partner (therapist or rider) assigned to a booking. Read-only on the client.
type Mitra struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Phone    string  `json:"phone"`
	PhotoURL string  `json:"photo"`
	Gender   string  `json:"gender"`
	Rating   float64 `json:"rating"`
	Location Coord   `json:"location"`
	Distance float64 `json:"distance,omitempty"`
}

// SearchCriteria are the query parameters of one nearby-mitra search.
type SearchCriteria struct {
	Location        Coord
	ServiceID       int64
	CustomerGender  string
	TotalPrice      int64
	ServiceName     string
	ServiceCategory string
}

type Rating struct {
	MitraID       int64  `json:"mitra_id"`
	Rating        int    `json:"rating"`
	ReviewText    string `json:"review_text"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}
