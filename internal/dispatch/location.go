package dispatch

import (
	"context"
	"fmt"

	"layanan/internal/domain"
	"layanan/internal/models"
)

// StoredLocation reads the last persisted fix.
type StoredLocation struct {
	State domain.StateStore
}

func (s StoredLocation) Current(ctx context.Context) (models.Coord, error) {
	loc, err := s.State.GetLastLocation(ctx)
	if err != nil {
		return models.Coord{}, err
	}
	if loc == nil || loc.Coord.IsZero() {
		return models.Coord{}, fmt.Errorf("no stored location")
	}
	return loc.Coord, nil
}

// StaticLocation always reports the same coordinate.
type StaticLocation models.Coord

func (s StaticLocation) Current(context.Context) (models.Coord, error) {
	return models.Coord(s), nil
}

func validCoord(c models.Coord) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}
